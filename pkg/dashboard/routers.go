package dashboard

import (
	"errors"
	"reflect"
	"strings"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard/handler"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard/middleware"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard/problem"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"API version of the response",
		"",
	)

	notFoundResponse = fizz.Response(
		"404",
		"Not Found",
		nil,
		nil,
		nil,
	)
)

func invalidParamsFromBinding(err error, sample any) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{
			Name:   name,
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL (e.g. https://…)"
	default:
		return fe.Error()
	}
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func init() {
	tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
		var be tonic.BindError
		if errors.As(err, &be) || isValidationErr(err) {
			invalids := invalidParamsFromBinding(err, handler.DownloadRequest{})
			apiErr := problem.NewBadRequest("body", "Invalid request body", invalids...)
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		if apiErr, ok := err.(problem.APIError); ok {
			c.Header("Content-Type", "application/problem+json")
			return apiErr.Status, apiErr
		}

		internal := problem.NewInternalServerError(err.Error())
		c.Header("Content-Type", "application/problem+json")
		return internal.Status, internal
	})
}

// NewRouter wires the dashboard endpoints onto a fizz/gin engine.
func NewRouter(apiVersion string, controller *handler.DashboardController) *fizz.Fizz {
	g := gin.Default()
	g.Use(APIVersionMiddleware(apiVersion))
	f := fizz.NewFromEngine(g)

	f.Generator().SetServers([]*openapi.Server{
		{
			URL:         "http://localhost:1337/v1",
			Description: "Local scraper dashboard",
		},
	})

	info := &openapi.Info{
		Title:       "Marketplace scraper dashboard API v1",
		Description: "Browse harvested Atlassian Marketplace metadata, start scrape and download runs, and manage binary storage",
		Version:     apiVersion,
	}

	root := f.Group("/v1", "Dashboard v1", "Scraper dashboard V1 routes")

	read := root.Group("", "Read", "Read-only endpoints", middleware.RequireAccess("apps:read"))
	read.GET("/apps",
		[]fizz.OperationOption{
			fizz.Summary("List harvested apps"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.ListApps, 200),
	)

	read.GET("/apps/:addonKey",
		[]fizz.OperationOption{
			fizz.Summary("Retrieve one app with its versions"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.RetrieveApp, 200),
	)

	read.GET("/products",
		[]fizz.OperationOption{
			fizz.Summary("List scrapeable products"),
			apiVersionHeader,
		},
		tonic.Handler(controller.ListProducts, 200),
	)

	read.GET("/stats",
		[]fizz.OperationOption{
			fizz.Summary("Catalog and storage statistics"),
			apiVersionHeader,
		},
		tonic.Handler(controller.GetStats, 200),
	)

	read.GET("/tasks",
		[]fizz.OperationOption{
			fizz.Summary("List background tasks"),
			apiVersionHeader,
		},
		tonic.Handler(controller.ListTasks, 200),
	)

	read.GET("/tasks/:id",
		[]fizz.OperationOption{
			fizz.Summary("Retrieve one background task"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.GetTask, 200),
	)

	read.GET("/orphans",
		[]fizz.OperationOption{
			fizz.Summary("List stored binaries without catalog metadata"),
			apiVersionHeader,
		},
		tonic.Handler(controller.ListOrphans, 200),
	)

	write := root.Group("", "Write", "Scrape, download and storage management", middleware.RequireAccess("apps:write"))
	write.POST("/tasks/scrape",
		[]fizz.OperationOption{
			fizz.Summary("Start a catalog scrape of all products"),
			apiVersionHeader,
		},
		tonic.Handler(controller.StartScrapeApps, 202),
	)

	write.POST("/tasks/versions",
		[]fizz.OperationOption{
			fizz.Summary("Start a version discovery run"),
			apiVersionHeader,
		},
		tonic.Handler(controller.StartScrapeVersions, 202),
	)

	write.POST("/tasks/download",
		[]fizz.OperationOption{
			fizz.Summary("Start a binary download run"),
			apiVersionHeader,
		},
		tonic.Handler(controller.StartDownload, 202),
	)

	write.POST("/apps/:addonKey/versions/:versionId/download",
		[]fizz.OperationOption{
			fizz.Summary("Download one version's binary"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(controller.DownloadVersion, 202),
	)

	write.POST("/reindex",
		[]fizz.OperationOption{
			fizz.Summary("Reconcile download metadata against stored binaries"),
			apiVersionHeader,
		},
		tonic.Handler(controller.TriggerReindex, 200),
	)

	write.DELETE("/orphans",
		[]fizz.OperationOption{
			fizz.Summary("Remove stored binaries without catalog metadata"),
			apiVersionHeader,
		},
		tonic.Handler(controller.CleanOrphans, 200),
	)

	// Binary streaming bypasses tonic; it writes the file straight to the
	// response.
	g.GET("/v1/binaries/:product/:addonKey/:versionId",
		middleware.RequireAccess("apps:read"),
		controller.ServeBinary,
	)

	f.GET("/v1/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
