package handlers

import (
	"net/http"
	"testing"

	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUsers(t *testing.T) {
	env := newEnv(t)
	testutil.CreateUser(t, env.store, "ana", auth.RoleAdmin)
	testutil.CreateUser(t, env.store, "anabel", auth.RoleUser)
	testutil.CreateUser(t, env.store, "bo", auth.RoleUser)

	w := env.call(t, env.h.ListUsers, http.MethodGet, "/v1/user?username=ana", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	users := decode[[]map[string]any](t, w)
	require.Len(t, users, 2)
	assert.Equal(t, "ana", users[0]["username"])
	assert.NotContains(t, users[0], "role")
	assert.NotContains(t, users[0], "password")

	w = env.call(t, env.h.ListUsers, http.MethodGet, "/v1/user?username=%25", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]map[string]any](t, w))

	w = env.call(t, env.h.ListUsers, http.MethodGet, "/v1/user?take=1&skip=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	users = decode[[]map[string]any](t, w)
	require.Len(t, users, 1)
	assert.Equal(t, "bo", users[0]["username"])

	w = env.call(t, env.h.ListUsers, http.MethodGet, "/v1/user?take=101", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMe(t *testing.T) {
	env := newEnv(t)
	user := testutil.CreateUser(t, env.store, "ana", auth.RoleUser)

	w := env.call(t, env.h.GetMe, http.MethodGet, "/v1/user/me", nil, &user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", decode[map[string]any](t, w)["email"])

	ghost := models.User{BaseModel: models.BaseModel{ID: 9999}}
	w = env.call(t, env.h.GetMe, http.MethodGet, "/v1/user/me", nil, &ghost)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", message(t, w))

	w = env.call(t, env.h.GetMe, http.MethodGet, "/v1/user/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateMe(t *testing.T) {
	env := newEnv(t)
	user := testutil.CreateUser(t, env.store, "ana", auth.RoleUser)
	testutil.CreateUser(t, env.store, "bo", auth.RoleUser)

	w := env.call(t, env.h.UpdateMe, http.MethodPut, "/v1/user", map[string]any{"first_name": "Anita"}, &user)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	var stored models.User
	require.NoError(t, env.store.DB.First(&stored, user.ID).Error)
	assert.Equal(t, "Anita", stored.FirstName)
	assert.Equal(t, "ana", stored.Username)
	assert.Equal(t, "ana@example.com", stored.Email)
	assert.Equal(t, user.Password, stored.Password)

	w = env.call(t, env.h.UpdateMe, http.MethodPut, "/v1/user", map[string]any{"email": "bo@example.com"}, &user)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email already used.", message(t, w))

	w = env.call(t, env.h.UpdateMe, http.MethodPut, "/v1/user", map[string]any{"username": "bo"}, &user)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username already used.", message(t, w))

	// Keeping one's own email is not a conflict.
	w = env.call(t, env.h.UpdateMe, http.MethodPut, "/v1/user", map[string]any{"email": "ana@example.com", "password": "new-password"}, &user)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.NoError(t, env.store.DB.First(&stored, user.ID).Error)
	ok, err := auth.VerifyPassword("new-password", stored.Password)
	require.NoError(t, err)
	assert.True(t, ok)

	w = env.call(t, env.h.UpdateMe, http.MethodPut, "/v1/user", map[string]any{"username": "ab"}, &user)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteMe(t *testing.T) {
	env := newEnv(t)
	user := testutil.CreateUser(t, env.store, "ana", auth.RoleUser)
	room := testutil.CreateRoom(t, env.store, "B204", 120)
	testutil.Subscribe(t, env.store, user.ID, room.ID)

	w := env.call(t, env.h.DeleteMe, http.MethodDelete, "/v1/user", nil, &user)
	require.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	require.NoError(t, env.store.DB.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)

	w = env.call(t, env.h.DeleteMe, http.MethodDelete, "/v1/user", nil, &user)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUsers(t *testing.T) {
	env := newEnv(t)
	admin := testutil.CreateUser(t, env.store, "admin", auth.RoleAdmin)
	root := testutil.CreateUser(t, env.store, "root", auth.RoleSuperAdmin)
	student := testutil.CreateUser(t, env.store, "student", auth.RoleUser)

	w := env.call(t, env.h.AdminListUsers, http.MethodGet, "/v1/admin/user", nil, &admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]map[string]any](t, w)["users"], 3)

	w = env.call(t, env.h.AdminListUsers, http.MethodGet, "/v1/admin/user?user_id=9999", nil, &admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := registerBody("prof@example.com", "prof")
	body["role"] = int(auth.RoleProfessor)
	w = env.call(t, env.h.AdminCreateUser, http.MethodPost, "/v1/admin/user", body, &admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, float64(auth.RoleProfessor), created["role"])

	body = registerBody("boss@example.com", "boss")
	body["role"] = int(auth.RoleSuperAdmin)
	w = env.call(t, env.h.AdminCreateUser, http.MethodPost, "/v1/admin/user", body, &admin)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.call(t, env.h.AdminUpdateUser, http.MethodPut, "/v1/admin/user", map[string]any{"user_id": student.ID, "role": int(auth.RoleProfessor)}, &admin)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = env.call(t, env.h.AdminListUsers, http.MethodGet, "/v1/admin/user?user_id="+itoa(student.ID), nil, &admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(auth.RoleProfessor), decode[map[string]any](t, w)["role"])

	w = env.call(t, env.h.AdminUpdateUser, http.MethodPut, "/v1/admin/user", map[string]any{"user_id": root.ID, "first_name": "Nope"}, &admin)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.call(t, env.h.AdminDeleteUser, http.MethodDelete, "/v1/admin/user", map[string]any{"user_id": root.ID}, &admin)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.call(t, env.h.AdminDeleteUser, http.MethodDelete, "/v1/admin/user", map[string]any{"user_id": student.ID}, &admin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.call(t, env.h.AdminDeleteUser, http.MethodDelete, "/v1/admin/user", map[string]any{"user_id": student.ID}, &root)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
