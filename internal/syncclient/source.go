package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	apperrors "go-pos-sync/pkg/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const defaultRequestTimeout = 10 * time.Second

type errorEnvelope struct {
	Error struct {
		Code      apperrors.Code `json:"code"`
		Message   string         `json:"message"`
		Retryable bool           `json:"retryable"`
	} `json:"error"`
}

// HTTPSource reads from the REST API with a bearer token.
type HTTPSource struct {
	baseURL string
	token   string
	timeout time.Duration
}

func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: defaultRequestTimeout,
	}
}

func (s *HTTPSource) Snapshot(ctx context.Context) (*service.Snapshot, error) {
	var snap service.Snapshot
	if err := s.get(ctx, "/api/v1/sync/snapshot", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *HTTPSource) Products(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := s.get(ctx, "/api/v1/products", &products)
	return products, err
}

func (s *HTTPSource) Categories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	err := s.get(ctx, "/api/v1/categories", &categories)
	return categories, err
}

func (s *HTTPSource) Sale(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var sale model.Sale
	if err := s.get(ctx, "/api/v1/sales/"+id.String(), &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *HTTPSource) LogoutMarker(ctx context.Context) (model.LogoutMarker, error) {
	var marker model.LogoutMarker
	err := s.get(ctx, "/api/v1/auth/logout-marker", &marker)
	return marker, err
}

func (s *HTTPSource) Product(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := s.get(ctx, "/api/v1/products/"+id.String(), &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ReserveDraft claims the next order number for a cart in progress.
func (s *HTTPSource) ReserveDraft(ctx context.Context) (*model.Sale, error) {
	var draft model.Sale
	if err := s.do(ctx, fiber.Post(s.baseURL+"/api/v1/sales/drafts"), &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// CreateSale submits a checkout.
func (s *HTTPSource) CreateSale(ctx context.Context, req *service.CreateSaleRequest) (*model.Sale, error) {
	var sale model.Sale
	agent := fiber.Post(s.baseURL + "/api/v1/sales").JSON(req)
	if err := s.do(ctx, agent, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	return s.do(ctx, fiber.Get(s.baseURL+path), out)
}

func (s *HTTPSource) do(ctx context.Context, agent *fiber.Agent, out any) error {
	if s.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	}
	return send(ctx, agent, s.timeout, out)
}

// Login exchanges a role password for a session.
func Login(ctx context.Context, baseURL string, req *service.LoginRequest) (*service.LoginResponse, error) {
	var resp service.LoginResponse
	agent := fiber.Post(strings.TrimRight(baseURL, "/") + "/api/v1/auth/login").JSON(req)
	if err := send(ctx, agent, defaultRequestTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// send runs the request and decodes a 2xx body into out. Error envelopes come
// back as typed errors carrying the server's code.
func send(ctx context.Context, agent *fiber.Agent, timeout time.Duration, out any) error {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	agent.Timeout(timeout)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return apperrors.Wrap(apperrors.CodeDependency, errs[0], "api request failed")
	}
	if status >= fiber.StatusBadRequest {
		var env errorEnvelope
		if err := json.Unmarshal(body, &env); err != nil || env.Error.Code == "" {
			return apperrors.Newf(apperrors.CodeDependency, "api returned status %d", status)
		}
		return apperrors.New(env.Error.Code, env.Error.Message)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding api response: %w", err)
	}
	return nil
}
