package notify

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

// SMSTexter publishes alert texts for the SMS gateway. Texts over the rate
// limit, with an unusable number, or that the producer cannot take are
// logged and dropped.
type SMSTexter struct {
	pub         Publisher
	limiter     *rate.Limiter
	countryCode string
	log         *zap.Logger
}

func NewSMSTexter(pub Publisher, perSecond float64, burst int, countryCode string, log *zap.Logger) *SMSTexter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 50
	}
	return &SMSTexter{
		pub:         pub,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
		countryCode: countryCode,
		log:         log,
	}
}

func (s *SMSTexter) SendText(_ context.Context, phoneNumber, message string) {
	to, ok := NormalizePhone(phoneNumber, s.countryCode)
	if !ok {
		s.log.Warn("sms skipped, invalid phone number", zap.String("phone", phoneNumber))
		return
	}
	if !s.limiter.Allow() {
		s.log.Warn("sms dropped, rate limited", zap.String("to", to))
		return
	}
	body, err := json.Marshal(bloodbank.SMSMessage{To: to, Body: message})
	if err != nil {
		s.log.Warn("sms encode failed", zap.Error(err))
		return
	}
	if !s.pub.TryPublish([]byte(to), body) {
		s.log.Warn("sms dropped, producer inbox full", zap.String("to", to))
	}
}

// NormalizePhone returns an E.164-style number. Ten-digit local numbers get
// the default country code; anything else without a leading + gets one.
func NormalizePhone(raw, countryCode string) (string, bool) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", false
	}
	plus := strings.HasPrefix(p, "+")
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, p)
	if len(digits) < 7 || len(digits) > 15 {
		return "", false
	}
	if plus {
		return "+" + digits, true
	}
	if len(digits) == 10 && countryCode != "" {
		return "+" + strings.TrimPrefix(countryCode, "+") + digits, true
	}
	return "+" + digits, true
}
