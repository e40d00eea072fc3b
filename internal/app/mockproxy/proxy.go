package mockproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/mock-proxy/internal/app/httpresponse"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type api struct {
	session *Session
	proxy   *httputil.ReverseProxy
	prefix  string
}

type interactionsResponse struct {
	Interactions []*CapturedInteraction `json:"interactions"`
}

type mocksResponse struct {
	Mocks []MockSummary `json:"mocks"`
}

// SetupRoutes serves session on e below prefix: the control API on its fixed paths,
// every other request is intercepted and resolved against the registered mocks with
// the prefix stripped.
func SetupRoutes(e *echo.Echo, prefix string, session *Session) {
	a := &api{
		session: session,
		prefix:  strings.TrimRight(prefix, "/"),
	}
	if target := session.Config().Target; target.Host != "" {
		a.proxy = httputil.NewSingleHostReverseProxy(&target)
	}

	g := e.Group(a.prefix)
	g.GET("/ready", a.readinessHandler)
	g.GET("/mocks", a.mocksListHandler)
	g.POST("/mocks", a.mocksRegisterHandler)
	g.DELETE("/mocks", a.mocksResetHandler)
	g.POST("/mocks/constraints", a.mocksConstraintsHandler)
	g.POST("/mocks/modifiers", a.mocksModifiersHandler)
	g.GET("/interactions", a.interactionsHandler)
	g.GET("/interactions/wait", a.interactionsWaitHandler)
	g.Any("/*", a.interceptHandler)
}

func (a *api) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (a *api) mocksListHandler(c echo.Context) error {
	summaries := make([]MockSummary, 0)
	for _, mock := range a.session.Mocks() {
		summaries = append(summaries, mock.Summary())
	}
	return c.JSON(http.StatusOK, mocksResponse{Mocks: summaries})
}

func (a *api) mocksRegisterHandler(c echo.Context) error {
	var def Definition
	decoder := json.NewDecoder(c.Request().Body)
	decoder.UseNumber()
	if err := decoder.Decode(&def); err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to parse mock definition. %s", err.Error())
	}
	if alias := c.QueryParam("alias"); alias != "" {
		def.Alias = alias
	}

	mock, err := a.session.Register(def)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to register mock. %s", err.Error())
	}
	return c.JSON(http.StatusCreated, mock.Summary())
}

func (a *api) mocksResetHandler(c echo.Context) error {
	log.Info("resetting session")
	a.session.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (a *api) mocksConstraintsHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to read constraint. %s", err.Error())
	}

	constraint, err := loadConstraint(data)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to load constraint. %s", err.Error())
	}

	if err := a.session.AddConstraint(constraint); err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to find mock for constraint. %s", err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (a *api) mocksModifiersHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to read modifier. %s", err.Error())
	}

	modifier, err := loadModifier(data)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to load modifier. %s", err.Error())
	}

	if err := a.session.AddModifier(modifier); err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to find mock for modifier. %s", err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (a *api) interactionsHandler(c echo.Context) error {
	interactions := a.session.Interactions(c.QueryParam("alias"))
	if interactions == nil {
		interactions = []*CapturedInteraction{}
	}
	return c.JSON(http.StatusOK, interactionsResponse{Interactions: interactions})
}

func (a *api) interactionsWaitHandler(c echo.Context) error {
	ctx := c.Request().Context()
	if timeout, err := time.ParseDuration(c.QueryParam("timeout")); err == nil && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	alias := c.QueryParam("alias")
	if alias == "" {
		if err := a.session.WaitForAll(ctx); err != nil {
			return waitError(c, err)
		}
		return c.NoContent(http.StatusOK)
	}

	count, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil {
		count = 1
	}

	captured, err := a.session.WaitForCount(ctx, alias, count)
	if err != nil {
		return waitError(c, err)
	}
	return c.JSON(http.StatusOK, interactionsResponse{Interactions: captured})
}

func waitError(c echo.Context, err error) error {
	var timeout *WaitTimeoutError
	switch {
	case errors.As(err, &timeout):
		return httpresponse.Error(c, http.StatusRequestTimeout, err.Error())
	case errors.Is(err, ErrUnknownAlias):
		return httpresponse.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return httpresponse.Error(c, http.StatusRequestTimeout, err.Error())
	}
	return httpresponse.Error(c, http.StatusInternalServerError, err.Error())
}

func (a *api) interceptHandler(c echo.Context) error {
	req := c.Request()
	log.Infof("intercepted %s %s", req.Method, req.URL.Path)

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to read request body. %s", err.Error())
	}
	if err := req.Body.Close(); err != nil {
		return httpresponse.Error(c, http.StatusInternalServerError, err.Error())
	}
	req.Body = io.NopCloser(bytes.NewBuffer(data))

	if a.prefix != "" {
		req.URL.Path = "/" + strings.TrimLeft(strings.TrimPrefix(req.URL.Path, a.prefix), "/")
		req.URL.RawPath = ""
	}

	reply, err := a.session.Resolve(InterceptedRequest{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header,
		Body:   data,
	})
	switch {
	case err == nil:
		return writeReply(c, reply)
	case errors.Is(err, ErrNoMock) && a.proxy != nil && a.session.Passthrough():
		target := a.session.Config().Target
		log.Infof("passing %s %s through to %s", req.Method, req.URL.Path, target.String())
		a.proxy.ServeHTTP(c.Response(), req)
		return nil
	case errors.Is(err, ErrNoMock):
		return httpresponse.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConstraintsNotMet):
		return httpresponse.Error(c, http.StatusBadRequest, err.Error())
	}
	return httpresponse.Error(c, http.StatusInternalServerError, err.Error())
}

func writeReply(c echo.Context, reply *Reply) error {
	res := c.Response()
	for name, values := range reply.Header {
		for _, value := range values {
			res.Header().Add(name, value)
		}
	}
	res.Header().Set(echo.HeaderContentLength, strconv.Itoa(len(reply.Body)))
	res.WriteHeader(reply.Status)
	_, err := res.Write(reply.Body)
	return err
}
