package modules

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const (
	// ModuleHTTP — имя http модуля.
	ModuleHTTP = "http"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// HTTPModule — модуль HTTP запроса к внешнему API.
//
// Параметры:
//
//	method:           метод запроса (по умолчанию GET)
//	url:              адрес (обязательный)
//	headers:          заголовки запроса
//	body:             тело (строка или сериализуемый в JSON объект)
//	follow_redirects: следовать редиректам (по умолчанию true)
//	validate_ssl:     проверять TLS-сертификат (по умолчанию true)
//	timeout_sec:      таймаут запроса
//
// Результат:
//
//	{"status_code": 200, "headers": {...}, "body": ...}
//
// body парсится как JSON при Content-Type application/json, иначе
// возвращается строкой.
type HTTPModule struct{}

// NewHTTPModule создаёт новый HTTPModule.
func NewHTTPModule() *HTTPModule {
	return &HTTPModule{}
}

// Name возвращает имя модуля.
func (m *HTTPModule) Name() string {
	return ModuleHTTP
}

// Run выполняет HTTP запрос.
func (m *HTTPModule) Run(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	cfg, err := m.parseParams(params)
	if err != nil {
		return nil, err
	}

	req, err := m.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	rc.Logf("http: %s %s", cfg.method, cfg.url)

	resp, err := m.buildClient(cfg).Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, fmt.Errorf("%w: %v", module.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	telemetry.FromContext(ctx).Debug("request finished",
		"method", cfg.method,
		"url", cfg.url,
		"status_code", resp.StatusCode,
	)

	return m.parseResponse(resp)
}

type httpParams struct {
	method          string
	url             string
	headers         map[string]string
	body            any
	followRedirects bool
	validateSSL     bool
	timeoutSec      int
}

func (m *HTTPModule) parseParams(params map[string]any) (*httpParams, error) {
	cfg := &httpParams{
		method:          ParamString(params, "method"),
		url:             ParamString(params, "url"),
		headers:         ParamStringMap(params, "headers"),
		body:            params["body"],
		followRedirects: ParamBool(params, "follow_redirects", true),
		validateSSL:     ParamBool(params, "validate_ssl", true),
		timeoutSec:      ParamInt(params, "timeout_sec"),
	}

	if cfg.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", module.ErrInvalidParams, ModuleHTTP)
	}
	if cfg.method == "" {
		cfg.method = http.MethodGet
	}
	cfg.method = strings.ToUpper(cfg.method)
	if cfg.headers == nil {
		cfg.headers = make(map[string]string)
	}
	return cfg, nil
}

func (m *HTTPModule) buildClient(cfg *httpParams) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.timeoutSec > 0 {
		timeout = time.Duration(cfg.timeoutSec) * time.Second
	}

	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.followRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.validateSSL,
			},
		},
	}
}

func (m *HTTPModule) buildRequest(ctx context.Context, cfg *httpParams) (*http.Request, error) {
	var bodyReader io.Reader
	if cfg.body != nil {
		bodyBytes, err := serializeBody(cfg.body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, ok := cfg.headers["Content-Type"]; !ok {
			cfg.headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, cfg.url, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func (m *HTTPModule) parseResponse(resp *http.Response) (any, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]string)
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}
