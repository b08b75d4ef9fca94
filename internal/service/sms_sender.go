package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/config"
)

type SMSSender interface {
	Send(ctx context.Context, mobile, message string) error
}

// NewSMSSender returns the gateway sender whenever SMS dispatch is enabled.
// In development messages are only logged, and the body is included only
// while the fixed development code is in use.
func NewSMSSender(cfg *config.Config) SMSSender {
	if !cfg.DispatchSMS() {
		return &logSMSSender{showBody: cfg.DevelopmentOTP()}
	}
	timeout := time.Duration(cfg.SMS.TimeoutSec) * time.Second
	return &gatewaySMSSender{
		cfg:    cfg.SMS,
		client: &http.Client{Timeout: timeout},
	}
}

type logSMSSender struct {
	showBody bool
}

func (s *logSMSSender) Send(ctx context.Context, mobile, message string) error {
	fields := []zap.Field{zap.String("mobile", mobile), zap.Int("length", len(message))}
	if s.showBody {
		fields = append(fields, zap.String("message", message))
	}
	logutil.GetLogger(ctx).Info("sms dispatch skipped", fields...)
	return nil
}

type gatewaySMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
}

type gatewayRequest struct {
	To      string `json:"to"`
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message"`
}

func (s *gatewaySMSSender) Send(ctx context.Context, mobile, message string) error {
	if s.cfg.GatewayURL == "" {
		return errors.New("sms gateway url not configured")
	}
	payload, err := json.Marshal(gatewayRequest{To: mobile, Sender: s.cfg.SenderID, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
