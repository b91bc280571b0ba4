package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medyassinekhlif/TrueCare/internal/platform/auth"
)

// AuditEntry records one access to client medical or financial records.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Area       string // admin, insurer, doctor, client
	Resource   string
	ClientID   string
	BulletinID string
	InsurerID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

const auditPrefix = "/api/v1/"

// Audit logs every /api/v1 request after the handler ran, with the caller's
// identity and the client, bulletin, or insurer the request touched. Entries
// are also handed to each recorder; recorder failures are logged and never
// fail the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, auditPrefix) {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: responseStatus(c, err),
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     httpMethodToAction(req.Method),
				ClientID:   c.Param("clientId"),
				BulletinID: c.Param("bulletinId"),
				InsurerID:  c.Param("insurerId"),
			}
			entry.Area, entry.Resource = splitAuditPath(path)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, rec := range recorders {
				if rec == nil {
					continue
				}
				if recErr := rec.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("area", entry.Area).
				Str("resource", entry.Resource).
				Str("client_id", entry.ClientID).
				Str("bulletin_id", entry.BulletinID).
				Str("insurer_id", entry.InsurerID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

// responseStatus returns the status the client will see. Errors returned up
// the chain have not been written yet.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitAuditPath maps /api/v1/<area>/<resource>/... to its area and the
// first resource segment.
//
//	/api/v1/insurer/estimations             -> insurer, estimations
//	/api/v1/insurer/clients/<id>/bulletins  -> insurer, clients
//	/api/v1/client/bulletins                -> client, bulletins
func splitAuditPath(path string) (area, resource string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, auditPrefix), "/"), "/")
	area = "unknown"
	if len(segments) > 0 && segments[0] != "" {
		area = segments[0]
	}
	if len(segments) > 1 {
		resource = segments[1]
	}
	return area, resource
}
