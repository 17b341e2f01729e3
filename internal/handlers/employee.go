package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reverside/timetracker/types"
)

type EmployeeHandler struct {
	userService UserService
}

func NewEmployeeHandler(userService UserService) *EmployeeHandler {
	return &EmployeeHandler{userService: userService}
}

// EmployeeRouter registers the admin-only employee management routes.
func EmployeeRouter(r chi.Router, handler *EmployeeHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware, RequireAdmin)

	r.Get("/", handler.ListEmployees)
	r.Post("/{employeeID}/toggle-status", handler.ToggleStatus)
}

func (h *EmployeeHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.userService.ListEmployees(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to fetch employees")
		return
	}
	if employees == nil {
		employees = []types.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

// ToggleStatus activates or deactivates an employee account.
func (h *EmployeeHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	employeeID, err := parseIDParam(r, "employeeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	employee, err := h.userService.ToggleActive(r.Context(), employeeID)
	if err != nil {
		writeServiceError(w, err, "failed to update employee status")
		return
	}

	message := "employee deactivated"
	if employee.IsActive {
		message = "employee activated"
	}
	writeJSON(w, http.StatusOK, ToggleStatusResponse{Employee: employee, Message: message})
}

type ToggleStatusResponse struct {
	Employee types.User `json:"employee"`
	Message  string     `json:"message"`
}
