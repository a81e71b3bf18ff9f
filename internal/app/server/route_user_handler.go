package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"lookout/internal/api/dto"
	"lookout/internal/auth"
	"lookout/internal/database"
	"lookout/internal/domain"
	"lookout/internal/support"
)

func checkLogin(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func registerUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !auth.IsValidEmail(credentials.Email) {
		writeError(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if len(credentials.Password) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	hashedPassword, err := support.HashPassword(credentials.Password)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	existing, err := database.GetUserByEmail(r.Context(), credentials.Email)
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		writeError(w, "Email already in use", http.StatusConflict)
		return
	}

	user := domain.User{
		Email:    credentials.Email,
		Password: hashedPassword,
		Role:     "user",
	}

	// The first account to register operates the instance.
	hasUsers, err := database.HasAnyUser(r.Context())
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if !hasUsers {
		user.Role = "admin"
	}

	if err := database.CreateUser(r.Context(), &user); err != nil {
		writeError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	log.Info("User registered", "email", user.Email, "role", user.Role)
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func loginUser(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByEmail(r.Context(), credentials.Email)
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}
	if user == nil || !support.CheckPasswordHash(credentials.Password, user.Password) {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func changePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserIDFromRequest(r)
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if len(body.NewPassword) < 8 {
		writeError(w, "Password must be at least 8 characters long", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserFromID(userID)
	if err != nil {
		writeError(w, "User not found", http.StatusNotFound)
		return
	}

	if !support.CheckPasswordHash(body.OldPassword, user.Password) {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	hashedPassword, err := support.HashPassword(body.NewPassword)
	if err != nil {
		writeError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	if err := database.UpdateUserPassword(r.Context(), userID, hashedPassword); err != nil {
		writeError(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
