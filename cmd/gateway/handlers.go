package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stonescriptdb/gateway/internal/config"
	"github.com/stonescriptdb/gateway/internal/dbpool"
	"github.com/stonescriptdb/gateway/internal/gatewayapi"
	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/schema"
	"github.com/stonescriptdb/gateway/internal/security"
	"github.com/stonescriptdb/gateway/pkg/logger"
)

// newMux wires every endpoint of the gateway's wire surface onto its
// gatewayapi.Server operation, with CIDR filtering ahead of every
// route and admin bearer-token auth plus audit logging in front of
// /admin/*.
func newMux(srv *gatewayapi.Server, cfg *config.Config, pools *dbpool.Manager, auditor *schema.AuditLogger, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		return srv.Health(r.Context())
	}))

	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		req, cleanup, gerr := decodeBundleUpload(r)
		if gerr != nil {
			writeError(w, gerr)
			return
		}
		defer cleanup()
		resp, gerr := srv.Register(r.Context(), gatewayapi.RegisterRequest{
			Platform:   req.platform,
			TenantID:   req.tenantID,
			SchemaPath: req.bundleDir,
		})
		writeResult(w, resp, gerr)
	})

	mux.HandleFunc("POST /migrate", func(w http.ResponseWriter, r *http.Request) {
		req, cleanup, gerr := decodeBundleUpload(r)
		if gerr != nil {
			writeError(w, gerr)
			return
		}
		defer cleanup()

		var tenantID *string
		if req.tenantIDSet {
			tenantID = &req.tenantID
		}
		resp, gerr := srv.Migrate(r.Context(), gatewayapi.MigrateRequest{
			Platform:   req.platform,
			TenantID:   tenantID,
			SchemaPath: req.bundleDir,
			Force:      req.force,
		})
		writeResult(w, resp, gerr)
	})

	mux.HandleFunc("POST /call", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		var body struct {
			Platform string `json:"platform"`
			TenantID string `json:"tenant_id"`
			Function string `json:"function"`
			Params   []any  `json:"params"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return srv.Call(r.Context(), gatewayapi.CallRequest{
			Platform: body.Platform,
			TenantID: body.TenantID,
			Function: body.Function,
			Params:   body.Params,
		})
	}))

	mux.HandleFunc("POST /platform/register", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		var body struct {
			Platform   string `json:"platform"`
			DBUser     string `json:"db_user"`
			DBPassword string `json:"db_password"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return srv.RegisterPlatform(r.Context(), gatewayapi.RegisterPlatformRequest{
			Platform:   body.Platform,
			DBUser:     body.DBUser,
			DBPassword: body.DBPassword,
		})
	}))

	mux.HandleFunc("POST /platform/{platform}/schema", func(w http.ResponseWriter, r *http.Request) {
		platform := r.PathValue("platform")
		if err := r.ParseMultipartForm(64 << 20); err != nil {
			writeError(w, gatewayerr.Wrap(gatewayerr.KindInvalidRequest, err, "parsing multipart form"))
			return
		}
		schemaName := r.FormValue("schema_name")

		bundleDir, cleanup, gerr := extractBundle(r, "schema")
		if gerr != nil {
			writeError(w, gerr)
			return
		}
		defer cleanup()

		resp, gerr := srv.StoreSchema(r.Context(), gatewayapi.UploadSchemaRequest{
			Platform:   platform,
			SchemaName: schemaName,
			SourceDir:  bundleDir,
		})
		writeResult(w, resp, gerr)
	})

	mux.HandleFunc("GET /platform/{platform}/schemas", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		return srv.ListPlatformSchemas(r.Context(), r.PathValue("platform"))
	}))

	mux.HandleFunc("GET /platform/{platform}/databases", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		return srv.ListPlatformDatabases(r.Context(), r.PathValue("platform"))
	}))

	mux.HandleFunc("GET /platforms", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		return srv.ListPlatforms(r.Context())
	}))

	mux.HandleFunc("POST /database/create", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		var body struct {
			Platform   string `json:"platform"`
			TenantID   string `json:"tenant_id"`
			SchemaName string `json:"schema_name"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return srv.CreateDatabase(r.Context(), gatewayapi.CreateDatabaseRequest{
			Platform:   body.Platform,
			TenantID:   body.TenantID,
			SchemaName: body.SchemaName,
		})
	}))

	mux.HandleFunc("POST /v2/migrate", jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		var body struct {
			Platform   string  `json:"platform"`
			TenantID   *string `json:"tenant_id"`
			SchemaName string  `json:"schema_name"`
			Force      bool    `json:"force"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return srv.MigrateV2(r.Context(), gatewayapi.MigrateV2Request{
			Platform:   body.Platform,
			TenantID:   body.TenantID,
			SchemaName: body.SchemaName,
			Force:      body.Force,
		})
	}))

	adminAuth := &security.AdminAuth{Token: cfg.AdminToken, AllowedNetworks: cfg.AllowedAdminIPs}

	mux.Handle("GET /admin/databases", withAdminAudit(adminAuth, pools, auditor, jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		return srv.AdminListDatabases(r.Context(), r.URL.Query().Get("platform"))
	})))

	mux.Handle("POST /admin/create-tenant", withAdminAudit(adminAuth, pools, auditor, jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		var body struct {
			Platform string `json:"platform"`
			TenantID string `json:"tenant_id"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		return srv.AdminCreateTenant(r.Context(), gatewayapi.AdminCreateTenantRequest{
			Platform: body.Platform,
			TenantID: body.TenantID,
		})
	})))

	mux.Handle("DELETE /admin/platform/{platform}", withAdminAudit(adminAuth, pools, auditor, jsonHandler(func(r *http.Request) (any, *gatewayerr.Error) {
		return srv.AdminDeletePlatform(r.Context(), r.PathValue("platform"))
	})))

	return withIPFilter(cfg.AllowedNetworks, mux)
}

// withIPFilter rejects requests whose source address is not covered by
// allowedNetworks, before any route runs. An empty allow-list disables
// filtering (permits everything), matching the gateway's own default of
// running behind a trusted reverse proxy in that case.
func withIPFilter(allowedNetworks []*net.IPNet, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(allowedNetworks) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := security.ClientIP(r)
		if ip == nil || !security.IsIPAllowed(allowedNetworks, ip) {
			writeError(w, gatewayerr.New(gatewayerr.KindUnauthorized, "source address not permitted"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code an inner handler wrote so it
// can be recorded in the admin audit log after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// withAdminAudit authenticates an admin request, runs it, and records the
// action (allowed or refused) to the admin audit table. A failure to
// write the audit row is logged and never fails the request it audits.
func withAdminAudit(auth *security.AdminAuth, pools *dbpool.Manager, auditor *schema.AuditLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var bodyCopy []byte
		if r.Body != nil {
			bodyCopy, _ = io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		switch auth.Authenticate(r) {
		case security.AuthOK:
			next.ServeHTTP(rec, r)
		case security.AuthDisabled:
			writeError(rec, gatewayerr.New(gatewayerr.KindUnauthorized, "admin endpoints are disabled"))
		case security.AuthForbiddenIP:
			writeError(rec, gatewayerr.New(gatewayerr.KindUnauthorized, "source address not permitted for admin access"))
		default:
			writeError(rec, gatewayerr.New(gatewayerr.KindUnauthorized, "missing or invalid admin token"))
		}

		auditor.LogAdminAction(r.Context(), pools.AdminPool(), r.Method+" "+r.URL.Path,
			security.ClientIP(r), r.URL.Path, string(bodyCopy), rec.status)
	})
}

// jsonHandler adapts an operation function returning (any, *gatewayerr.Error)
// into an http.HandlerFunc.
func jsonHandler(fn func(r *http.Request) (any, *gatewayerr.Error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, gerr := fn(r)
		writeResult(w, resp, gerr)
	}
}

func writeResult(w http.ResponseWriter, resp any, gerr *gatewayerr.Error) {
	if gerr != nil {
		writeError(w, gerr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, gerr *gatewayerr.Error) {
	body := map[string]any{
		"error":   string(gerr.Kind),
		"message": gerr.Message,
	}
	for k, v := range gerr.Context {
		body[k] = v
	}
	writeJSON(w, gerr.StatusCode(), body)
}

func decodeJSON(r *http.Request, v any) *gatewayerr.Error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInvalidRequest, err, "decoding request body")
	}
	return nil
}

// bundleUpload is the parsed common shape of every multipart deploy
// request (/register, /migrate).
type bundleUpload struct {
	platform    string
	tenantID    string
	tenantIDSet bool
	force       bool
	bundleDir   string
}

func decodeBundleUpload(r *http.Request) (*bundleUpload, func(), *gatewayerr.Error) {
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		return nil, nil, gatewayerr.Wrap(gatewayerr.KindInvalidRequest, err, "parsing multipart form")
	}

	req := &bundleUpload{platform: r.FormValue("platform")}
	if tid, ok := r.MultipartForm.Value["tenant_id"]; ok && len(tid) > 0 {
		req.tenantID = tid[0]
		req.tenantIDSet = true
	}
	if force, err := strconv.ParseBool(r.FormValue("force")); err == nil {
		req.force = force
	}

	bundleDir, cleanup, gerr := extractBundle(r, "schema")
	if gerr != nil {
		return nil, nil, gerr
	}
	req.bundleDir = bundleDir
	return req, cleanup, nil
}

// extractBundle reads the named multipart file field as a gzip-compressed
// tar archive, extracts it into a fresh temp directory, and returns the
// path to its "postgresql" subtree — the root schema.LoadBundle expects.
func extractBundle(r *http.Request, field string) (string, func(), *gatewayerr.Error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return "", nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "reading uploaded schema archive")
	}
	defer file.Close()

	dir, err := os.MkdirTemp("", "gateway-bundle-*")
	if err != nil {
		return "", nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "creating extraction directory")
	}
	cleanup := func() { os.RemoveAll(dir) }

	gz, err := gzip.NewReader(file)
	if err != nil {
		cleanup()
		return "", nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "decompressing schema archive")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			cleanup()
			return "", nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "reading schema archive")
		}

		target := filepath.Join(dir, filepath.Clean("/"+hdr.Name))
		if !strings.HasPrefix(target, dir) {
			cleanup()
			return "", nil, gatewayerr.New(gatewayerr.KindBundleMalformed, "archive entry escapes extraction directory")
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				cleanup()
				return "", nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "creating extracted directory")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				cleanup()
				return "", nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "creating extracted directory")
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				cleanup()
				return "", nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "writing extracted file")
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				cleanup()
				return "", nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "extracting file from archive")
			}
			out.Close()
		}
	}

	root := filepath.Join(dir, "postgresql")
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		cleanup()
		return "", nil, gatewayerr.New(gatewayerr.KindBundleMalformed, `schema archive must contain a top-level "postgresql/" directory`)
	}
	return root, cleanup, nil
}
