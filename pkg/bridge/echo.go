package bridge

import (
	"net/http"

	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EchoMiddleware adapts mw to an Echo middleware.
// Errors returned by the Echo handler are rendered by the Echo error handler
// inside the intercepted response, so interceptors see those frames too.
func EchoMiddleware(mw common.Middleware, logger *zap.Logger) echo.MiddlewareFunc {
	wrap := HTTPMiddleware(mw, logger)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			orig := c.Response()
			h := wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				c.SetRequest(r)
				c.SetResponse(echo.NewResponse(w, c.Echo()))
				if err := next(c); err != nil {
					c.Error(err)
				}
			}))
			h.ServeHTTP(orig, c.Request())
			c.SetResponse(orig)
			return nil
		}
	}
}
