// Package apiclient is a thin HTTP client for the telemedicine backend. Each
// method makes exactly one request; there is no retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// DefaultTimeout bounds every call when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

type Config struct {
	// BaseURL includes the /api prefix, e.g. http://localhost:3000/api.
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New builds a Client. A nil httpClient uses a fresh http.Client.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		http:    httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// do sends one request and returns the envelope data. On a non-2xx status the
// data is still returned alongside the error.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, newNetworkError(op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newTimeoutError(op, err)
		}
		return nil, newNetworkError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newTimeoutError(op, err)
		}
		return nil, newNetworkError(op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return env.Data, newStatusError(op, resp.StatusCode, env.Error)
	}
	if decodeErr != nil {
		return nil, newDecodeError(op, decodeErr)
	}
	if !env.Success {
		return env.Data, newStatusError(op, resp.StatusCode, env.Error)
	}
	return env.Data, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	data, err := c.do(ctx, op, method, path, contentType, body)
	if err != nil {
		return err
	}
	return decodeInto(op, data, out)
}

func decodeInto(op string, data json.RawMessage, out any) error {
	if out == nil {
		return nil
	}
	if len(data) == 0 {
		return newDecodeError(op, errors.New("response has no data"))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newDecodeError(op, err)
	}
	return nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (domain.HealthStatus, error) {
	var out domain.HealthStatus
	err := c.doJSON(ctx, "Health", http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	var out domain.Patient
	err := c.doJSON(ctx, "CreatePatient", http.MethodPost, "/patients", p, &out)
	return out, err
}

func (c *Client) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	var out domain.Patient
	err := c.doJSON(ctx, "GetPatient", http.MethodGet, "/patients/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) UpdatePatient(ctx context.Context, id string, update domain.PatientUpdate) (domain.Patient, error) {
	var out domain.Patient
	err := c.doJSON(ctx, "UpdatePatient", http.MethodPut, "/patients/"+url.PathEscape(id), update, &out)
	return out, err
}

func (c *Client) SaveConsultation(ctx context.Context, in domain.Consultation) (domain.Consultation, error) {
	var out domain.Consultation
	err := c.doJSON(ctx, "SaveConsultation", http.MethodPost, "/consultations", in, &out)
	return out, err
}

// ListConsultations returns a patient's consultations newest first. limit <= 0
// leaves the server default in place.
func (c *Client) ListConsultations(ctx context.Context, patientID string, limit int) ([]domain.Consultation, error) {
	path := "/consultations/patient/" + url.PathEscape(patientID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.Consultation
	err := c.doJSON(ctx, "ListConsultations", http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) DeleteConsultation(ctx context.Context, id string) error {
	return c.doJSON(ctx, "DeleteConsultation", http.MethodDelete, "/consultations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SaveMedicalRecord(ctx context.Context, in domain.MedicalRecord) (domain.MedicalRecord, error) {
	var out domain.MedicalRecord
	err := c.doJSON(ctx, "SaveMedicalRecord", http.MethodPost, "/medical-records", in, &out)
	return out, err
}

func (c *Client) ListMedicalRecords(ctx context.Context, patientID string) ([]domain.MedicalRecord, error) {
	var out []domain.MedicalRecord
	err := c.doJSON(ctx, "ListMedicalRecords", http.MethodGet, "/medical-records/patient/"+url.PathEscape(patientID), nil, &out)
	return out, err
}

// UploadImage posts the binary as the "image" part and the remaining fields
// as "metadata".
func (c *Client) UploadImage(ctx context.Context, img domain.ImageAnalysis) (domain.ImageAnalysis, error) {
	const op = "UploadImage"
	meta, err := json.Marshal(imageMetadata{
		ImageID:        img.ImageID,
		PatientID:      img.PatientID,
		AnalysisResult: img.AnalysisResult,
	})
	if err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("%s: encode metadata: %w", op, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("metadata", string(meta)); err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("%s: %w", op, err)
	}
	fileName := img.FileName
	if fileName == "" {
		fileName = img.ImageID
	}
	fileType := img.FileType
	if fileType == "" {
		fileType = http.DetectContentType(img.ImageData)
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, fileName))
	hdr.Set("Content-Type", fileType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := part.Write(img.ImageData); err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("%s: %w", op, err)
	}

	data, err := c.do(ctx, op, http.MethodPost, "/images", mw.FormDataContentType(), &body)
	if err != nil {
		return domain.ImageAnalysis{}, err
	}
	var out domain.ImageAnalysis
	if err := decodeInto(op, data, &out); err != nil {
		return domain.ImageAnalysis{}, err
	}
	return out, nil
}

// imageMetadata is the subset of ImageAnalysis the upload form carries.
type imageMetadata struct {
	ImageID        string `json:"imageId,omitempty"`
	PatientID      string `json:"patientId"`
	AnalysisResult string `json:"analysisResult,omitempty"`
}

func (c *Client) ListImages(ctx context.Context, patientID string) ([]domain.ImageAnalysis, error) {
	var out []domain.ImageAnalysis
	err := c.doJSON(ctx, "ListImages", http.MethodGet, "/images/patient/"+url.PathEscape(patientID), nil, &out)
	return out, err
}

// GetImageData downloads the stored binary and its content type.
func (c *Client) GetImageData(ctx context.Context, imageID string) ([]byte, string, error) {
	const op = "GetImageData"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/images/"+url.PathEscape(imageID)+"/data", nil)
	if err != nil {
		return nil, "", newNetworkError(op, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", newTimeoutError(op, err)
		}
		return nil, "", newNetworkError(op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", newNetworkError(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		return nil, "", newStatusError(op, resp.StatusCode, env.Error)
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

func (c *Client) SaveAnalytics(ctx context.Context, e domain.AnalyticsEvent) (domain.AnalyticsEvent, error) {
	var out domain.AnalyticsEvent
	err := c.doJSON(ctx, "SaveAnalytics", http.MethodPost, "/analytics", e, &out)
	return out, err
}

// QueryAnalytics sends only the bounds that are set.
func (c *Client) QueryAnalytics(ctx context.Context, patientID string, f domain.AnalyticsFilter) ([]domain.AnalyticsEvent, error) {
	q := url.Values{}
	if patientID != "" {
		q.Set("patientId", patientID)
	}
	if f.EventType != "" {
		q.Set("eventType", f.EventType)
	}
	if !f.Start.IsZero() {
		q.Set("startDate", f.Start.UTC().Format(time.RFC3339Nano))
	}
	if !f.End.IsZero() {
		q.Set("endDate", f.End.UTC().Format(time.RFC3339Nano))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/analytics"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []domain.AnalyticsEvent
	err := c.doJSON(ctx, "QueryAnalytics", http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	var out domain.LoginResult
	in := map[string]string{"email": email, "password": password}
	err := c.doJSON(ctx, "Login", http.MethodPost, "/auth/login", in, &out)
	return out, err
}

// Sync pushes one collection. A partial failure still returns the server's
// report together with the error.
func (c *Client) Sync(ctx context.Context, col domain.Collection, records map[string]json.RawMessage) (domain.SyncReport, error) {
	const op = "Sync"
	raw, err := json.Marshal(domain.SyncRequest{col: records})
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("%s: encode request: %w", op, err)
	}
	data, err := c.do(ctx, op, http.MethodPost, "/sync", "application/json", bytes.NewReader(raw))
	var report domain.SyncReport
	if len(data) > 0 {
		if derr := json.Unmarshal(data, &report); derr != nil && err == nil {
			err = newDecodeError(op, derr)
		}
	}
	return report, err
}

func (c *Client) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var out domain.DashboardStats
	err := c.doJSON(ctx, "DashboardStats", http.MethodGet, "/dashboard/stats", nil, &out)
	return out, err
}
