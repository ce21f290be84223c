package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-rod/rod"
	"github.com/gofiber/fiber/v2"

	"github.com/rdanvers/pagecheck/internal/api"
	"github.com/rdanvers/pagecheck/internal/browser"
	"github.com/rdanvers/pagecheck/internal/verify"
)

// fakeClient pretends to be a running browser. NewPage is never reached by
// the handlers under test.
type fakeClient struct {
	running  bool
	endpoint string
}

func (c *fakeClient) IsRunning() bool     { return c.running }
func (c *fakeClient) GetEndpoint() string { return c.endpoint }
func (c *fakeClient) NewPage(ctx context.Context) (*rod.Page, error) {
	return nil, errors.New("not implemented")
}
func (c *fakeClient) OpenPage(ctx context.Context, url string, opts browser.PageOptions) (*rod.Page, error) {
	return nil, errors.New("not implemented")
}

// fakeVerifier records the last request and returns a canned result.
type fakeVerifier struct {
	lastReq verify.Request
	result  verify.Result
}

func (v *fakeVerifier) Verify(ctx context.Context, req verify.Request) verify.Result {
	v.lastReq = req
	return v.result
}

func setupTestApp(v *fakeVerifier) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})

	client := &fakeClient{running: true, endpoint: "ws://127.0.0.1:9222"}
	api.SetupRoutes(app, client, v)

	return app
}

func okVerifier() *fakeVerifier {
	return &fakeVerifier{
		result: verify.Result{
			Succeeded:      true,
			ScreenshotPath: "./artifacts/out.png",
		},
	}
}

func TestHealthCheck(t *testing.T) {
	app := setupTestApp(okVerifier())

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var response api.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if !response.Success {
		t.Errorf("Expected success to be true")
	}
}

func TestBrowserStatus(t *testing.T) {
	app := setupTestApp(okVerifier())

	req := httptest.NewRequest("GET", "/pagecheck/browser/status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var response api.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	data := response.Data.(map[string]interface{})
	if data["running"] != true {
		t.Errorf("Expected browser to be running")
	}
	if data["endpoint"] != "ws://127.0.0.1:9222" {
		t.Errorf("Unexpected endpoint %v", data["endpoint"])
	}
}

func TestVerify(t *testing.T) {
	v := okVerifier()
	app := setupTestApp(v)

	reqBody := `{
		"target_url": "https://example.com",
		"ready_selector": "#app",
		"output_path": "./artifacts/out.png",
		"interaction_points": [{"x": 10, "y": 20}, {"x": 30, "y": 40}]
	}`
	req := httptest.NewRequest("POST", "/pagecheck/verify", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if v.lastReq.TargetURL != "https://example.com" {
		t.Errorf("Verifier got URL %q", v.lastReq.TargetURL)
	}
	if v.lastReq.ReadySelector != "#app" {
		t.Errorf("Verifier got selector %q", v.lastReq.ReadySelector)
	}
	if len(v.lastReq.InteractionPoints) != 2 || v.lastReq.InteractionPoints[0].X != 10 {
		t.Errorf("Interaction points not passed through: %v", v.lastReq.InteractionPoints)
	}

	body, _ := io.ReadAll(resp.Body)
	var response api.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	data := response.Data.(map[string]interface{})
	if data["succeeded"] != true {
		t.Errorf("Expected verification to succeed")
	}
}

func TestVerifyFailureStillHTTP200(t *testing.T) {
	v := &fakeVerifier{
		result: verify.Result{
			Succeeded: false,
			Kind:      verify.KindElementNotFound,
			Error:     "element not found: #missing",
		},
	}
	app := setupTestApp(v)

	reqBody := `{"target_url": "https://example.com", "ready_selector": "#missing", "output_path": "./out.png"}`
	req := httptest.NewRequest("POST", "/pagecheck/verify", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var response api.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	data := response.Data.(map[string]interface{})
	if data["succeeded"] != false {
		t.Errorf("Expected verification outcome to be a failure")
	}
	if data["error_kind"] != "element_not_found" {
		t.Errorf("Expected error_kind element_not_found, got %v", data["error_kind"])
	}
}

func TestVerifyMissingFields(t *testing.T) {
	app := setupTestApp(okVerifier())

	cases := []struct {
		name string
		body string
	}{
		{"missing url", `{"ready_selector": "#app", "output_path": "./out.png"}`},
		{"missing selector", `{"target_url": "https://example.com", "output_path": "./out.png"}`},
		{"missing output", `{"target_url": "https://example.com", "ready_selector": "#app"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/pagecheck/verify", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Failed to test request: %v", err)
			}

			if resp.StatusCode != 400 {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestVerifyInvalidJSON(t *testing.T) {
	app := setupTestApp(okVerifier())

	reqBody := `{invalid json}`
	req := httptest.NewRequest("POST", "/pagecheck/verify", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Failed to test request: %v", err)
	}

	if resp.StatusCode != 400 {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}
