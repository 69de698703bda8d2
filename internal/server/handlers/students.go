package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloudzz-dev/rosterchat/internal/models"
)

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListStudents(r.Context())
	if err != nil {
		writeStoreError(w, "list students", err)
		return
	}
	if students == nil {
		students = []models.Student{}
	}
	writeJSON(w, http.StatusOK, students)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStudent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get student", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStudentRequest
	if !decodeValid(w, r, &req) {
		return
	}
	st, err := s.store.CreateStudent(r.Context(), req.Student(""))
	if err != nil {
		writeStoreError(w, "create student", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStudentRequest
	if !decodeValid(w, r, &req) {
		return
	}
	st, err := s.store.UpdateStudent(r.Context(), req.Student(chi.URLParam(r, "id")))
	if err != nil {
		writeStoreError(w, "update student", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteStudent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete student", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
