package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"api-gateway-go/internal/model"
	"api-gateway-go/internal/route"
	"api-gateway-go/internal/service"
)

// ProxyHandler forwards /api/* requests to the backend owning the resource.
type ProxyHandler struct {
	dispatcher *service.Dispatcher
	logger     *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(d *service.Dispatcher, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		dispatcher: d,
		logger:     logger.With("component", "proxy_handler"),
	}
}

// Handle dispatches the request and writes the result as a fully buffered response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return h.readError(c, err)
		}
		body = b
	}

	pr := &model.ProxyRequest{
		Method:   req.Method,
		Path:     req.URL.EscapedPath(),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     body,
	}

	res, err := h.dispatcher.Dispatch(req.Context(), pr)
	if err != nil {
		return h.mapError(c, err)
	}
	return h.writeResult(c, res)
}

func (h *ProxyHandler) writeResult(c echo.Context, res *model.ProxyResult) error {
	switch res.Kind {
	case model.Relayed:
		header := c.Response().Header()
		for key, vals := range res.Header {
			for _, v := range vals {
				header.Add(key, v)
			}
		}
		if len(res.Body) > 0 && header.Get(echo.HeaderContentType) == "" {
			header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		}
		c.Response().WriteHeader(res.StatusCode)
		if len(res.Body) > 0 {
			if _, err := c.Response().Write(res.Body); err != nil {
				h.logger.Error("write response body",
					"err", err,
					"service", res.Service,
				)
			}
		}
		return nil

	case model.BackendInvalid:
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": fmt.Sprintf("%s service returned an invalid response", res.Service),
		})

	default:
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": fmt.Sprintf("%s service unavailable", res.Service),
		})
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, route.ErrRouteNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "Not found",
		})
	}

	var mna *service.MethodNotAllowedError
	if errors.As(err, &mna) {
		c.Response().Header().Set(echo.HeaderAllow, strings.Join(mna.Allowed, ", "))
		return c.JSON(http.StatusMethodNotAllowed, map[string]string{
			"error": "Method not allowed",
		})
	}

	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal gateway error",
	})
}

func (h *ProxyHandler) readError(c echo.Context, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": "Request body too large",
		})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, map[string]string{
			"error": errorMessage(he),
		})
	}
	h.logger.Warn("read request body",
		"err", err,
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusBadRequest, map[string]string{
		"error": "could not read request body",
	})
}
