package auth

import (
	"context"
	"time"

	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/upstream"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// Messages shown when the backend rejects a form without saying why.
const (
	DefaultLoginFailure    = "Login failed"
	DefaultRegisterFailure = "An unknown error occurred"
)

// Backend forwards login and registration forms to the authentication service.
type Backend struct {
	rc *resty.Client
}

// NewBackend creates a Backend for the service at baseURL.
func NewBackend(baseURL string, timeout time.Duration) *Backend {
	return &Backend{rc: upstream.NewHTTPClient(baseURL, timeout)}
}

// Login submits credentials. A rejected login is not an error: the result
// has Success false and a message to show. err is set only when the backend
// could not be reached or answered garbage.
func (b *Backend) Login(ctx context.Context, creds models.LoginCredentials) (models.AuthResult, error) {
	start := time.Now()
	result, err := b.post(ctx, "login", "/login", creds)
	if err != nil {
		observeProxy("login", start, "error")
		return models.AuthResult{}, err
	}
	if !result.Success && result.Message == "" {
		result.Message = DefaultLoginFailure
	}
	observeProxy("login", start, outcome(result.Success))
	return result, nil
}

// Register submits a registration. The backend signals failure by sending
// errors; Success is set from their absence.
func (b *Backend) Register(ctx context.Context, reg models.Registration) (models.AuthResult, error) {
	start := time.Now()
	result, err := b.post(ctx, "register", "/register", reg)
	if err != nil {
		observeProxy("register", start, "error")
		return models.AuthResult{}, err
	}
	result.Success = !result.HasErrors()
	if !result.Success && result.Message == "" {
		result.Message = DefaultRegisterFailure
	}
	observeProxy("register", start, outcome(result.Success))
	return result, nil
}

func (b *Backend) post(ctx context.Context, operation, path string, body interface{}) (result models.AuthResult, err error) {
	start := time.Now()
	defer func() {
		upstream.Observe("auth_"+operation, start, err)
		if err != nil {
			logger.Log.Error("auth backend call failed", zap.String("operation", operation), zap.Error(err))
		}
	}()

	resp, err := b.rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetExpectResponseContentType("application/json").
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		if resp != nil && resp.StatusCode() > 0 && ctx.Err() == nil {
			return result, upstream.NewValidationError("malformed auth response", err)
		}
		return result, upstream.ClassifyTransportError(err)
	}
	if resp.StatusCode() >= 500 && result.Message == "" && !result.HasErrors() {
		return result, upstream.ClassifyHTTPError(resp.StatusCode(), "")
	}
	return result, nil
}

func outcome(success bool) string {
	if success {
		return "accepted"
	}
	return "rejected"
}

func observeProxy(operation string, start time.Time, result string) {
	metrics.AuthProxyDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
	logger.Log.Info("auth form forwarded", zap.String("operation", operation), zap.String("outcome", result))
}
