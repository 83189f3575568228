package rest

import (
	"net/http"

	"github.com/ecociel/taskmanager/uc"
	"github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewContainer mounts the task service and, when gatherer is non-nil, the
// metrics endpoint.
func NewContainer(tasks uc.Tasks, auth Authorizer, gatherer prometheus.Gatherer) *restful.Container {
	c := restful.NewContainer()
	c.Add(NewTaskService(tasks, auth))
	if gatherer != nil {
		c.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	c.ServeMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return c
}
