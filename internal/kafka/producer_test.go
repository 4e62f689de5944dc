package kafka

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProducer_TryPublish(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "test", 1, nil)

	assert.True(t, p.TryPublish([]byte("k"), []byte("v1")))
	assert.False(t, p.TryPublish([]byte("k"), []byte("v2")), "inbox full")

	p.Close()
	p.Close()
	assert.False(t, p.TryPublish([]byte("k"), []byte("v3")))
}

func TestProducer_PublishRacingClose(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "test", 64, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.TryPublish([]byte("k"), []byte("v"))
			}
		}()
	}
	p.Close()
	wg.Wait()

	n := 0
	for range p.inbox {
		n++
	}
	assert.LessOrEqual(t, n, 64)
}
