package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/ecociel/taskmanager/domain"
	"github.com/ecociel/taskmanager/gate"
	"github.com/ecociel/taskmanager/uc"
	"github.com/emicklei/go-restful/v3"
	"github.com/emicklei/go-restful/v3/log"
	"github.com/google/uuid"
)

const (
	pathParamID       = "id"
	queryParamStatus  = "status"
	queryParamSearch  = "search"
	headerAuthorize   = "Authorization"
	msgInternalError  = "internal error"
	msgTaskNotFound   = "task not found"
	msgTitleRequired  = "title is required"
	msgInvalidPayload = "invalid payload"
	attrPrincipal     = "principal"
)

// Authorizer validates the Authorization header value and returns the
// caller's claims when it is acceptable.
type Authorizer interface {
	Principal(ctx context.Context, header string) (*gate.Claims, bool)
}

type taskResource struct {
	tasks uc.Tasks
}

// NewTaskService returns the /api/tasks web service. Every route is behind
// the authorizer.
func NewTaskService(tasks uc.Tasks, auth Authorizer) *restful.WebService {
	r := taskResource{tasks: tasks}

	ws := new(restful.WebService)
	ws.Path("/api/tasks").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	ws.Filter(authFilter(auth))

	ws.Route(ws.GET("").To(r.list).
		Param(ws.QueryParameter(queryParamStatus, "comma separated statuses")).
		Param(ws.QueryParameter(queryParamSearch, "text matched against title and assignee")).
		Writes([]domain.Task{}))
	ws.Route(ws.GET("/{" + pathParamID + "}").To(r.get).
		Param(ws.PathParameter(pathParamID, "task id")).
		Writes(domain.Task{}))
	ws.Route(ws.POST("").To(r.create).
		Reads(domain.CreateCommand{}).
		Writes(domain.Task{}))
	ws.Route(ws.PUT("/{" + pathParamID + "}").To(r.update).
		Param(ws.PathParameter(pathParamID, "task id")).
		Reads(domain.UpdateCommand{}).
		Writes(domain.Task{}))
	ws.Route(ws.DELETE("/{" + pathParamID + "}").To(r.delete).
		Param(ws.PathParameter(pathParamID, "task id")))

	return ws
}

func authFilter(auth Authorizer) restful.FilterFunction {
	return func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		claims, ok := auth.Principal(req.Request.Context(), req.HeaderParameter(headerAuthorize))
		if !ok {
			resp.AddHeader("WWW-Authenticate", "Bearer")
			resp.WriteHeader(http.StatusUnauthorized)
			return
		}
		req.SetAttribute(attrPrincipal, claims)
		chain.ProcessFilter(req, resp)
	}
}

func (r taskResource) list(req *restful.Request, resp *restful.Response) {
	filter := domain.ListFilter{
		Statuses: domain.ParseStatuses(req.QueryParameter(queryParamStatus)),
		Search:   req.QueryParameter(queryParamSearch),
	}
	tasks, err := r.tasks.List(req.Request.Context(), filter)
	if err != nil {
		internalError(req, resp, "list tasks", err)
		return
	}
	writeJSON(resp, http.StatusOK, tasks)
}

func (r taskResource) get(req *restful.Request, resp *restful.Response) {
	id, ok := taskID(req)
	if !ok {
		notFound(resp)
		return
	}
	task, found, err := r.tasks.Get(req.Request.Context(), id)
	if err != nil {
		internalError(req, resp, "get task", err)
		return
	}
	if !found {
		notFound(resp)
		return
	}
	writeJSON(resp, http.StatusOK, task)
}

func (r taskResource) create(req *restful.Request, resp *restful.Response) {
	var cmd domain.CreateCommand
	if err := req.ReadEntity(&cmd); err != nil {
		_ = resp.WriteErrorString(http.StatusBadRequest, msgInvalidPayload)
		return
	}
	if strings.TrimSpace(cmd.Title) == "" {
		_ = resp.WriteErrorString(http.StatusBadRequest, msgTitleRequired)
		return
	}
	task, err := r.tasks.Create(req.Request.Context(), cmd)
	if err != nil {
		internalError(req, resp, "create task", err)
		return
	}
	log.Printf("task %s created by %s", task.ID, who(req))
	writeJSON(resp, http.StatusCreated, task)
}

func (r taskResource) update(req *restful.Request, resp *restful.Response) {
	id, ok := taskID(req)
	if !ok {
		notFound(resp)
		return
	}
	var cmd domain.UpdateCommand
	if err := req.ReadEntity(&cmd); err != nil {
		_ = resp.WriteErrorString(http.StatusBadRequest, msgInvalidPayload)
		return
	}
	if strings.TrimSpace(cmd.Title) == "" {
		_ = resp.WriteErrorString(http.StatusBadRequest, msgTitleRequired)
		return
	}
	task, found, err := r.tasks.Update(req.Request.Context(), id, cmd)
	if err != nil {
		internalError(req, resp, "update task", err)
		return
	}
	if !found {
		notFound(resp)
		return
	}
	log.Printf("task %s updated by %s", task.ID, who(req))
	writeJSON(resp, http.StatusOK, task)
}

func (r taskResource) delete(req *restful.Request, resp *restful.Response) {
	id, ok := taskID(req)
	if !ok {
		notFound(resp)
		return
	}
	deleted, err := r.tasks.Delete(req.Request.Context(), id)
	if err != nil {
		internalError(req, resp, "delete task", err)
		return
	}
	if !deleted {
		notFound(resp)
		return
	}
	log.Printf("task %s deleted by %s", id, who(req))
	resp.WriteHeader(http.StatusNoContent)
}

// taskID parses the id path parameter. A malformed id cannot name a task.
func taskID(req *restful.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(req.PathParameter(pathParamID))
	return id, err == nil
}

func notFound(resp *restful.Response) {
	_ = resp.WriteErrorString(http.StatusNotFound, msgTaskNotFound)
}

// who names the authenticated caller of req.
func who(req *restful.Request) string {
	if claims, ok := req.Attribute(attrPrincipal).(*gate.Claims); ok && claims != nil {
		return claims.Who()
	}
	return "unknown"
}

func internalError(req *restful.Request, resp *restful.Response, op string, err error) {
	log.Printf("%s for %s: %v", op, who(req), err)
	_ = resp.WriteErrorString(http.StatusInternalServerError, msgInternalError)
}

func writeJSON(resp *restful.Response, status int, v any) {
	if err := resp.WriteHeaderAndEntity(status, v); err != nil {
		log.Printf("write response: %v", err)
	}
}
