package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"thoughtful/api/internal/auth"
	"thoughtful/api/internal/export"
	"thoughtful/api/internal/search"
	"thoughtful/api/internal/store"
)

type testClient struct {
	t       *testing.T
	svc     *Service
	handler http.Handler
	cookie  string
	apiKey  string
}

func newTestClient(t *testing.T, svc *Service) *testClient {
	return &testClient{t: t, svc: svc, handler: NewHTTPServer(svc, "*").Handler()}
}

func (c *testClient) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: c.cookie})
	}
	if c.apiKey != "" {
		req.Header.Set("API-Authentication", c.apiKey)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	return rr
}

// login registers or logs in and keeps the issued session cookie.
func (c *testClient) login(path, username, password string) {
	c.t.Helper()
	rr := c.do(http.MethodPost, path, `{"username":"`+username+`","password":"`+password+`"}`)
	if rr.Code != http.StatusOK {
		c.t.Fatalf("expected status 200 from %s, got %d body=%s", path, rr.Code, rr.Body.String())
	}
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == auth.CookieName {
			c.cookie = cookie.Value
			return
		}
	}
	c.t.Fatalf("expected %s cookie from %s", auth.CookieName, path)
}

func decodePayload(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	return decodePayload(t, rr)
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code, message string) {
	t.Helper()
	payload := expectStatus(t, rr, status)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	if message != "" && payload["error"] != message {
		t.Fatalf("expected error %q, got %v", message, payload["error"])
	}
}

func TestRegisterCreateListDeleteScenario(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")
	client.cookie = ""
	client.login("/api/account/login", "alice", "secret1")

	created := expectStatus(t, client.do(http.MethodPost, "/api/ideas/create",
		`{"title":"Ship it","description":"launch","tags":[],"icon":"Rocket","todos":[],"resources":[]}`), http.StatusOK)
	if created["success"] != true {
		t.Fatalf("expected success marker, got %v", created)
	}
	idea, _ := created["idea"].(map[string]any)
	ideaID, _ := idea["id"].(string)
	if ideaID == "" || idea["icon"] != "Rocket" {
		t.Fatalf("unexpected idea %v", idea)
	}

	listed := expectStatus(t, client.do(http.MethodGet, "/api/ideas/list", ""), http.StatusOK)
	ideas, _ := listed["ideas"].([]any)
	if len(ideas) != 1 || ideas[0].(map[string]any)["title"] != "Ship it" {
		t.Fatalf("expected one idea titled Ship it, got %v", listed["ideas"])
	}

	deleted := expectStatus(t, client.do(http.MethodDelete, "/api/ideas/delete", `{"id":"`+ideaID+`"}`), http.StatusOK)
	if deleted["message"] != "Idea deleted successfully" {
		t.Fatalf("unexpected delete response %v", deleted)
	}

	listed = expectStatus(t, client.do(http.MethodGet, "/api/ideas/list", ""), http.StatusOK)
	if ideas, ok := listed["ideas"].([]any); !ok || len(ideas) != 0 {
		t.Fatalf("expected empty ideas array, got %v", listed["ideas"])
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	rr := client.do(http.MethodPost, "/api/account/register", `{"username":"alice","password":"secret1"}`)
	expectStatus(t, rr, http.StatusOK)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" || cookie.Domain != "localhost" {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}
	if want := testNow.Add(90 * 24 * time.Hour); !cookie.Expires.Equal(want) {
		t.Fatalf("expected cookie expiry %v, got %v", want, cookie.Expires)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	rr := client.do(http.MethodPost, "/api/account/register", `{"username":"alice","password":"another1"}`)
	expectError(t, rr, http.StatusConflict, codeConflict, "Username already taken")
}

func TestLoginFailuresShareOneMessage(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	seedUser(t, svc, fs, "alice", "secret1")
	client := newTestClient(t, svc)

	for _, body := range []string{
		`{"username":"alice","password":"wrong-password"}`,
		`{"username":"nobody","password":"secret1"}`,
	} {
		rr := client.do(http.MethodPost, "/api/account/login", body)
		expectError(t, rr, http.StatusUnauthorized, codeInvalidCredential, "Invalid username or password")
	}
}

func TestInvalidBodyIsRejected(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	rr := client.do(http.MethodPost, "/api/account/login", `{"username":`)
	expectError(t, rr, http.StatusBadRequest, codeInvalidBody, "invalid JSON body")
}

func TestProtectedRoutesReportAuthFailure(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	identity := seedUser(t, svc, fs, "alice", "secret1")
	fs.sessions["expired-token"] = store.Session{ID: "s1", UserID: identity.UserID, Token: "expired-token", ExpiresAt: testNow.Add(-time.Minute)}
	fs.sessions["orphan-token"] = store.Session{ID: "s2", UserID: "user-gone", Token: "orphan-token", ExpiresAt: testNow.Add(time.Hour)}

	tests := []struct {
		name    string
		cookie  string
		message string
	}{
		{name: "no cookie", cookie: "", message: "No Cookie Provided"},
		{name: "unknown token", cookie: "not-a-session", message: "Invalid Session"},
		{name: "expired session", cookie: "expired-token", message: "Session Expired"},
		{name: "deleted user", cookie: "orphan-token", message: "User Not Found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, svc)
			client.cookie = tc.cookie
			for _, route := range []struct{ method, path string }{
				{http.MethodGet, "/api/account/fetch"},
				{http.MethodGet, "/api/ideas/list"},
				{http.MethodGet, "/api/account/statuses"},
				{http.MethodGet, "/api/account/api-keys"},
			} {
				rr := client.do(route.method, route.path, "")
				expectError(t, rr, http.StatusUnauthorized, codeUnauthorized, tc.message)
			}
		})
	}
}

func TestIdeaOwnershipIsolation(t *testing.T) {
	svc := newTestService(newFakeStore())
	alice := newTestClient(t, svc)
	alice.login("/api/account/register", "alice", "secret1")
	bob := newTestClient(t, svc)
	bob.login("/api/account/register", "bobby", "secret2")

	created := expectStatus(t, alice.do(http.MethodPost, "/api/ideas/create", `{"title":"Private","description":"mine"}`), http.StatusOK)
	ideaID := created["idea"].(map[string]any)["id"].(string)

	rr := bob.do(http.MethodPut, "/api/ideas/update", `{"id":"`+ideaID+`","title":"Stolen"}`)
	expectError(t, rr, http.StatusNotFound, codeNotFound, "Idea not found or you don't have permission to update it")

	rr = bob.do(http.MethodDelete, "/api/ideas/delete", `{"id":"`+ideaID+`"}`)
	expectError(t, rr, http.StatusNotFound, codeNotFound, "Idea not found or you don't have permission to delete it")

	listed := expectStatus(t, bob.do(http.MethodGet, "/api/ideas/list", ""), http.StatusOK)
	if ideas := listed["ideas"].([]any); len(ideas) != 0 {
		t.Fatalf("bob must not see alice's ideas, got %v", ideas)
	}
	searched := expectStatus(t, bob.do(http.MethodGet, "/api/ideas/search?q=private", ""), http.StatusOK)
	if ideas := searched["ideas"].([]any); len(ideas) != 0 {
		t.Fatalf("bob must not find alice's ideas, got %v", ideas)
	}

	listed = expectStatus(t, alice.do(http.MethodGet, "/api/ideas/list", ""), http.StatusOK)
	if idea := listed["ideas"].([]any)[0].(map[string]any); idea["title"] != "Private" {
		t.Fatalf("alice's idea changed: %v", idea)
	}
}

func TestMalformedIdeaIDIsNotFound(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	for _, id := range []string{"abc", "not-a-uuid"} {
		rr := client.do(http.MethodPut, "/api/ideas/update", `{"id":"`+id+`","title":"x"}`)
		expectError(t, rr, http.StatusNotFound, codeNotFound, "Idea not found or you don't have permission to update it")

		rr = client.do(http.MethodDelete, "/api/ideas/delete", `{"id":"`+id+`"}`)
		expectError(t, rr, http.StatusNotFound, codeNotFound, "Idea not found or you don't have permission to delete it")
	}
}

func TestUpdateIdeaEmptyStatusClearsIt(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	created := expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"t","description":"d","statusId":"in-progress"}`), http.StatusOK)
	ideaID := created["idea"].(map[string]any)["id"].(string)

	updated := expectStatus(t, client.do(http.MethodPut, "/api/ideas/update", `{"id":"`+ideaID+`","statusId":""}`), http.StatusOK)
	if status, ok := updated["idea"].(map[string]any)["statusId"]; ok {
		t.Fatalf("expected statusId to be absent, got %v", status)
	}
}

func TestCreateIdeaValidationAndDefaults(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	rr := client.do(http.MethodPost, "/api/ideas/create", `{"title":"`+strings.Repeat("t", 201)+`","description":"d"}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "title must be at most 200 characters")

	rr = client.do(http.MethodPost, "/api/ideas/create", `{"title":"t","description":"d","tags":["a","b","c","d","e","f"]}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "tags must contain at most 5 item(s)")

	rr = client.do(http.MethodPost, "/api/ideas/create", `{"title":"t","description":"d","resources":[{"name":"docs","link":"not a url"}]}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "resources[0].link must be a valid URL")

	rr = client.do(http.MethodPost, "/api/ideas/create", `{"title":"t","description":"d","todos":[{"id":"l1","title":"List","items":[{"id":"i1","text":"","completed":false}]}]}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "todos[0].items[0].text must be at least 1 characters")

	created := expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"t","description":"d"}`), http.StatusOK)
	idea := created["idea"].(map[string]any)
	if idea["icon"] != "Lightbulb" {
		t.Fatalf("expected default icon, got %v", idea["icon"])
	}
	for _, field := range []string{"tags", "todos", "resources"} {
		if list, ok := idea[field].([]any); !ok || len(list) != 0 {
			t.Fatalf("expected empty %s array, got %v", field, idea[field])
		}
	}
	if _, ok := idea["statusId"]; ok {
		t.Fatalf("expected no statusId, got %v", idea["statusId"])
	}
}

func TestUpdateIdeaChangesOnlySuppliedFields(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	created := expectStatus(t, client.do(http.MethodPost, "/api/ideas/create",
		`{"title":"Ship it","description":"launch","tags":["go"],"statusId":"not-started"}`), http.StatusOK)
	ideaID := created["idea"].(map[string]any)["id"].(string)

	rr := client.do(http.MethodPut, "/api/ideas/update", `{"id":"`+ideaID+`","title":""}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "title must be at least 1 characters")

	updated := expectStatus(t, client.do(http.MethodPut, "/api/ideas/update", `{"id":"`+ideaID+`","statusId":"in-progress"}`), http.StatusOK)
	idea := updated["idea"].(map[string]any)
	if idea["statusId"] != "in-progress" || idea["title"] != "Ship it" || idea["description"] != "launch" {
		t.Fatalf("unexpected idea after update %v", idea)
	}
	if tags := idea["tags"].([]any); len(tags) != 1 || tags[0] != "go" {
		t.Fatalf("tags must be unchanged, got %v", tags)
	}

	rr = client.do(http.MethodPut, "/api/ideas/update", `{"title":"no id"}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "id is required")
}

func TestListIdeasSortingAndFilter(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	client := newTestClient(t, svc)
	client.login("/api/account/register", "alice", "secret1")

	for i, title := range []string{"banana", "apple", "cherry"} {
		svc.now = func() time.Time { return testNow.Add(time.Duration(i) * time.Minute) }
		status := "not-started"
		if title == "apple" {
			status = "completed"
		}
		expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"`+title+`","description":"d","statusId":"`+status+`"}`), http.StatusOK)
	}

	titles := func(payload map[string]any) []string {
		var out []string
		for _, item := range payload["ideas"].([]any) {
			out = append(out, item.(map[string]any)["title"].(string))
		}
		return out
	}

	got := titles(expectStatus(t, client.do(http.MethodGet, "/api/ideas/list", ""), http.StatusOK))
	if strings.Join(got, ",") != "cherry,apple,banana" {
		t.Fatalf("expected newest first by default, got %v", got)
	}
	got = titles(expectStatus(t, client.do(http.MethodGet, "/api/ideas/list?sortBy=title&sortOrder=asc", ""), http.StatusOK))
	if strings.Join(got, ",") != "apple,banana,cherry" {
		t.Fatalf("expected title ascending, got %v", got)
	}
	got = titles(expectStatus(t, client.do(http.MethodGet, "/api/ideas/list?statusId=completed", ""), http.StatusOK))
	if strings.Join(got, ",") != "apple" {
		t.Fatalf("expected status filter, got %v", got)
	}

	rr := client.do(http.MethodGet, "/api/ideas/list?sortBy=priority", "")
	expectError(t, rr, http.StatusBadRequest, codeValidation, "sortBy must be one of: createdAt updatedAt title")
	rr = client.do(http.MethodGet, "/api/ideas/list?sortOrder=sideways", "")
	expectError(t, rr, http.StatusBadRequest, codeValidation, "")
}

func TestSearchIdeas(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"Garden plan","description":"tomatoes"}`), http.StatusOK)
	expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"Trip","description":"Lisbon","tags":["Travel"]}`), http.StatusOK)

	rr := client.do(http.MethodGet, "/api/ideas/search", "")
	expectError(t, rr, http.StatusBadRequest, codeValidation, "Search query parameter 'q' is required")

	payload := expectStatus(t, client.do(http.MethodGet, "/api/ideas/search?q=TRAVEL", ""), http.StatusOK)
	if payload["query"] != "TRAVEL" {
		t.Fatalf("expected echoed query, got %v", payload["query"])
	}
	ideas := payload["ideas"].([]any)
	if len(ideas) != 1 || ideas[0].(map[string]any)["title"] != "Trip" {
		t.Fatalf("expected tag match, got %v", ideas)
	}
}

type rankedEngine struct {
	ids []string
}

func (e *rankedEngine) Healthy() bool                                     { return true }
func (e *rankedEngine) SearchIdeas(string, string, int) ([]string, error) { return e.ids, nil }
func (e *rankedEngine) IndexIdeas([]search.IdeaRecord) error              { return nil }
func (e *rankedEngine) DeleteIdea(string) error                           { return nil }
func (e *rankedEngine) DeleteUserIdeas(string) error                      { return nil }

func TestRelevanceSearchKeepsEngineOrder(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	identity := seedUser(t, svc, fs, "alice", "secret1")
	first, _ := svc.CreateIdea(context.Background(), identity, CreateIdeaInput{Title: "first", Description: "d"})
	second, _ := svc.CreateIdea(context.Background(), identity, CreateIdeaInput{Title: "second", Description: "d"})

	engine := &rankedEngine{ids: []string{second.ID, "stale-id", first.ID}}
	svc.search = search.NewService(engine)
	defer svc.search.Wait()

	ideas, err := svc.SearchIdeas(context.Background(), identity, "whatever", "relevance")
	if err != nil {
		t.Fatalf("SearchIdeas() error = %v", err)
	}
	if len(ideas) != 2 || ideas[0].ID != second.ID || ideas[1].ID != first.ID {
		t.Fatalf("expected engine order without stale ids, got %+v", ideas)
	}

	ideas, err = svc.SearchIdeas(context.Background(), identity, "first", "")
	if err != nil {
		t.Fatalf("SearchIdeas() error = %v", err)
	}
	if len(ideas) != 1 || ideas[0].ID != first.ID {
		t.Fatalf("expected substring search without relevance mode, got %+v", ideas)
	}
}

func TestAPIKeyLifecycleOverHTTP(t *testing.T) {
	svc := newTestService(newFakeStore())
	client := newTestClient(t, svc)
	client.login("/api/account/register", "alice", "secret1")

	created := expectStatus(t, client.do(http.MethodPost, "/api/account/api-keys/create", `{"description":"cli"}`), http.StatusOK)
	apiKey := created["apiKey"].(map[string]any)
	token, _ := apiKey["token"].(string)
	keyID, _ := apiKey["id"].(string)
	if len(token) != 64 || keyID == "" {
		t.Fatalf("unexpected created key %v", apiKey)
	}

	listed := expectStatus(t, client.do(http.MethodGet, "/api/account/api-keys", ""), http.StatusOK)
	if strings.Contains(decodeRaw(t, listed), token) || strings.Contains(decodeRaw(t, listed), auth.HashToken(token)) {
		t.Fatalf("list must not expose token or hash: %v", listed)
	}
	keys := listed["apiKeys"].([]any)
	if len(keys) != 1 || keys[0].(map[string]any)["description"] != "cli" {
		t.Fatalf("unexpected keys %v", keys)
	}

	keyClient := newTestClient(t, svc)
	keyClient.apiKey = token
	fetched := expectStatus(t, keyClient.do(http.MethodGet, "/api/account/fetch", ""), http.StatusOK)
	user := fetched["user"].(map[string]any)
	if user["username"] != "alice" {
		t.Fatalf("expected api key to authenticate alice, got %v", user)
	}
	if strings.Contains(decodeRaw(t, fetched), auth.HashToken(token)) || strings.Contains(decodeRaw(t, fetched), "passwordHash") {
		t.Fatalf("fetch leaked secrets: %v", fetched)
	}
	expectStatus(t, keyClient.do(http.MethodPost, "/api/ideas/create", `{"title":"via key","description":"d"}`), http.StatusOK)

	expectStatus(t, client.do(http.MethodDelete, "/api/account/api-keys/"+keyID, ""), http.StatusOK)
	expectStatus(t, client.do(http.MethodDelete, "/api/account/api-keys/"+keyID, ""), http.StatusOK)

	rr := keyClient.do(http.MethodGet, "/api/account/fetch", "")
	expectError(t, rr, http.StatusUnauthorized, codeUnauthorized, "No Cookie Provided")
}

func TestAPIKeyLookupFailureFallsBackToCookie(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	client := newTestClient(t, svc)
	client.login("/api/account/register", "alice", "secret1")
	fs.getUserByAPIKeyHashFn = func(context.Context, string) (store.User, error) {
		return store.User{}, errors.New("db timeout")
	}
	client.apiKey = "some-key"

	expectStatus(t, client.do(http.MethodGet, "/api/account/fetch", ""), http.StatusOK)
}

func decodeRaw(t *testing.T, payload map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(raw)
}

func TestStatusRoutes(t *testing.T) {
	fs := newFakeStore()
	client := newTestClient(t, newTestService(fs))
	client.login("/api/account/register", "alice", "secret1")

	defaults := expectStatus(t, client.do(http.MethodGet, "/api/statuses/defaults", ""), http.StatusOK)
	if list := defaults["statusDefinitions"].([]any); len(list) != 3 {
		t.Fatalf("expected 3 default statuses, got %v", list)
	}

	rr := client.do(http.MethodPost, "/api/account/statuses/save", `{"name":"Blocked","color":"red"}`)
	expectError(t, rr, http.StatusBadRequest, codeValidation, "Invalid hex color format")

	rr = client.do(http.MethodPost, "/api/account/statuses/save", `{"id":"completed","name":"Done","color":"#00ff00"}`)
	expectError(t, rr, http.StatusBadRequest, codeReservedID, "Cannot modify default statuses")

	saved := expectStatus(t, client.do(http.MethodPost, "/api/account/statuses/save", `{"name":"Blocked","color":"#ff0000"}`), http.StatusOK)
	status := saved["status"].(map[string]any)
	statusID := status["id"].(string)
	if status["name"] != "Blocked" || status["color"] != "#ff0000" {
		t.Fatalf("unexpected saved status %v", status)
	}

	listed := expectStatus(t, client.do(http.MethodGet, "/api/account/statuses", ""), http.StatusOK)
	if list := listed["statusDefinitions"].([]any); len(list) != 1 {
		t.Fatalf("expected only custom statuses, got %v", list)
	}

	expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"t","description":"d","statusId":"`+statusID+`"}`), http.StatusOK)
	expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"u","description":"d","statusId":"`+statusID+`"}`), http.StatusOK)

	warning := expectStatus(t, client.do(http.MethodDelete, "/api/account/statuses/"+statusID, ""), http.StatusOK)
	if warning["warning"] != true || warning["ideasCount"] != float64(2) || warning["message"] != "2 idea(s) use this status" {
		t.Fatalf("unexpected warning %v", warning)
	}

	rr = client.do(http.MethodDelete, "/api/account/statuses/in-progress", "")
	expectError(t, rr, http.StatusBadRequest, codeReservedID, "Cannot delete default statuses")

	expectStatus(t, client.do(http.MethodPost, "/api/account/statuses/"+statusID+"/force-delete", ""), http.StatusOK)

	unknown := expectStatus(t, client.do(http.MethodGet, "/api/ideas/list?statusId=deleted", ""), http.StatusOK)
	if list := unknown["ideas"].([]any); len(list) != 2 {
		t.Fatalf("expected 2 ideas at the unknown status, got %v", list)
	}

	fixed := expectStatus(t, client.do(http.MethodPost, "/api/account/statuses/fix-unknown", `{"newStatusId":"completed"}`), http.StatusOK)
	if fixed["updatedCount"] != float64(2) {
		t.Fatalf("expected updatedCount 2, got %v", fixed)
	}

	deleted := expectStatus(t, client.do(http.MethodDelete, "/api/account/statuses/"+statusID, ""), http.StatusOK)
	if deleted["success"] != true {
		t.Fatalf("expected plain success for unused status, got %v", deleted)
	}
}

func TestManagePassword(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	rr := client.do(http.MethodPost, "/api/account/manage", `{"currentPassword":"wrong-one","newPassword":"secret2"}`)
	expectError(t, rr, http.StatusUnauthorized, codeUnauthorized, "Current password is incorrect")

	ok := expectStatus(t, client.do(http.MethodPost, "/api/account/manage", `{"currentPassword":"secret1","newPassword":"secret2"}`), http.StatusOK)
	if ok["message"] != "Password updated successfully" {
		t.Fatalf("unexpected response %v", ok)
	}

	other := newTestClient(t, client.svc)
	other.login("/api/account/login", "alice", "secret2")
}

func TestLogoutAndAccountDelete(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	client := newTestClient(t, svc)
	client.login("/api/account/register", "alice", "secret1")
	token := client.cookie

	rr := client.do(http.MethodPost, "/api/account/logout", "")
	payload := expectStatus(t, rr, http.StatusOK)
	if payload["message"] != "Logged out successfully" {
		t.Fatalf("unexpected logout response %v", payload)
	}
	assertCookieCleared(t, rr)
	if _, err := fs.GetSession(context.Background(), token); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected session removed, got %v", err)
	}
	rr = client.do(http.MethodGet, "/api/account/fetch", "")
	expectError(t, rr, http.StatusUnauthorized, codeUnauthorized, "Invalid Session")

	client.login("/api/account/login", "alice", "secret1")
	rr = client.do(http.MethodPost, "/api/account/delete", `{"password":"nope-nope"}`)
	expectError(t, rr, http.StatusUnauthorized, codeUnauthorized, "Password is incorrect")

	rr = client.do(http.MethodPost, "/api/account/delete", `{"password":"secret1"}`)
	expectStatus(t, rr, http.StatusOK)
	assertCookieCleared(t, rr)
	if len(fs.users) != 0 || len(fs.sessions) != 0 {
		t.Fatalf("expected everything removed, users=%d sessions=%d", len(fs.users), len(fs.sessions))
	}
}

func assertCookieCleared(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == auth.CookieName && cookie.MaxAge < 0 {
			return
		}
	}
	t.Fatalf("expected %s to be cleared", auth.CookieName)
}

func TestDownloadJSONExport(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")
	expectStatus(t, client.do(http.MethodPost, "/api/ideas/create", `{"title":"Ship it","description":"launch"}`), http.StatusOK)

	rr := client.do(http.MethodGet, "/api/account/download", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	disposition := rr.Header().Get("Content-Disposition")
	if !strings.HasPrefix(disposition, `attachment; filename="thoughtful-data-alice-`) || !strings.HasSuffix(disposition, `.json"`) {
		t.Fatalf("unexpected Content-Disposition %q", disposition)
	}
	if strings.Contains(rr.Body.String(), "$2a$") || strings.Contains(rr.Body.String(), "passwordHash") {
		t.Fatalf("export leaked password hash: %s", rr.Body.String())
	}

	var snapshot export.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if snapshot.User.Username != "alice" || len(snapshot.Ideas) != 1 {
		t.Fatalf("unexpected export %+v", snapshot)
	}

	rr = client.do(http.MethodGet, "/api/account/download?format=docx", "")
	expectError(t, rr, http.StatusBadRequest, codeValidation, "")

	rr = client.do(http.MethodGet, "/api/account/download?delivery=link", "")
	expectError(t, rr, http.StatusServiceUnavailable, codeExportUnavailable, "Export links are not configured")
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))
	client.login("/api/account/register", "alice", "secret1")

	expectError(t, client.do(http.MethodGet, "/api/nothing", ""), http.StatusNotFound, "NOT_FOUND", "")
	expectError(t, client.do(http.MethodGet, "/api/ideas/create", ""), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
	expectError(t, client.do(http.MethodGet, "/api/account/register", ""), http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "")
	expectError(t, client.do(http.MethodGet, "/api/account/unknown", ""), http.StatusNotFound, "NOT_FOUND", "")
}

func TestMapErrorDefaults(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "pdf unavailable", err: export.ErrPDFDependencyMissing, status: http.StatusServiceUnavailable, code: codeExportUnavailable},
		{name: "not found", err: store.ErrNotFound, status: http.StatusNotFound, code: codeNotFound},
		{name: "version conflict", err: store.ErrVersionConflict, status: http.StatusConflict, code: codeConflict},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: codeServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _, _ := mapError(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("mapError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
			}
		})
	}
}
