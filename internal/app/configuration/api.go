package configuration

import (
	"fmt"
	"net/http"

	"github.com/form3tech-oss/mock-proxy/internal/app/httpresponse"
	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type adminAPI struct {
	servers *Servers
}

type proxiesResponse struct {
	Proxies []string `json:"proxies"`
}

func ServeAdminAPI(port int, servers *Servers) *echo.Echo {
	adminServer := NewAdminAPI(servers)

	go func() {
		address := fmt.Sprintf(":%d", port)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func NewAdminAPI(servers *Servers) *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true

	a := &adminAPI{servers: servers}
	adminServer.GET("/proxies", a.getProxiesHandler)
	adminServer.DELETE("/proxies", a.deleteProxiesHandler)
	adminServer.POST("/proxies", a.postProxiesHandler)

	return adminServer
}

func (a *adminAPI) getProxiesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, proxiesResponse{Proxies: a.servers.Addresses()})
}

func (a *adminAPI) deleteProxiesHandler(c echo.Context) error {
	log.Infof("closing all proxies")
	a.servers.CloseAll()
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) postProxiesHandler(c echo.Context) error {
	proxyConfig := mockproxy.Config{}
	err := c.Bind(&proxyConfig)
	if err != nil {
		return httpresponse.Errorf(c, http.StatusBadRequest, "unable to parse proxy configuration from data. %s", err.Error())
	}

	log.Infof("setting up proxy on %s (unmatched: %s, target: %s)",
		proxyConfig.ServerAddress.String(), proxyConfig.UnmatchedPolicy, proxyConfig.Target.String())

	if _, err := ConfigureProxy(a.servers, proxyConfig); err != nil {
		return httpresponse.Errorf(c, http.StatusInternalServerError, "unable to create proxy from configuration. %s", err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}
