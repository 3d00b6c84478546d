package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// DefaultDriveUploadURL is the multipart upload endpoint
	DefaultDriveUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart&fields=id,webViewLink&supportsAllDrives=true"

	folderMimeType = "application/vnd.google-apps.folder"
)

// DriveConfig configures the Drive connector. Empty fields use Google's
// production endpoints.
type DriveConfig struct {
	// Endpoint overrides the Drive API base path (e.g. https://www.googleapis.com/drive/v3/)
	Endpoint   string
	UploadURL  string
	HTTPClient *http.Client
}

// DriveConnector opens Drive stores
type DriveConnector struct {
	endpoint   string
	uploadURL  string
	httpClient *http.Client
}

// NewDriveConnector creates a DriveConnector
func NewDriveConnector(cfg DriveConfig) *DriveConnector {
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = DefaultDriveUploadURL
	}
	return &DriveConnector{
		endpoint:   cfg.Endpoint,
		uploadURL:  uploadURL,
		httpClient: cfg.HTTPClient,
	}
}

// Connect binds a Drive client to the access token
func (c *DriveConnector) Connect(ctx context.Context, token *oauth2.Token) (Store, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	return &driveStore{svc: svc, client: client, uploadURL: c.uploadURL}, nil
}

type driveStore struct {
	svc       *drive.Service
	client    *http.Client
	uploadURL string
}

func (s *driveStore) CreateFolder(ctx context.Context, name, parentID string) (*Container, error) {
	folder := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	created, err := s.svc.Files.Create(folder).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("creating folder %q: %w", name, err)
	}

	link := created.WebViewLink
	if link == "" {
		link = "https://drive.google.com/drive/folders/" + created.Id
	}

	slog.Info("Created drive folder", "name", name, "id", created.Id)
	return &Container{ID: created.Id, Link: link}, nil
}

func (s *driveStore) Upload(ctx context.Context, file File) (*UploadedFile, error) {
	meta := fileMetadata{Name: file.Name}
	if file.ParentID != "" {
		meta.Parents = []string{file.ParentID}
	}

	body, contentType, err := encodeMultipart(meta, file.MimeType, file.Data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading %q: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("uploading %q: %w", file.Name, err)
	}

	var uploaded struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	if uploaded.ID == "" {
		return nil, fmt.Errorf("uploading %q: response has no file id", file.Name)
	}

	link := uploaded.WebViewLink
	if link == "" {
		link = "https://drive.google.com/file/d/" + uploaded.ID + "/view"
	}

	return &UploadedFile{ID: uploaded.ID, Link: link}, nil
}

func (s *driveStore) SetPublic(ctx context.Context, id string) error {
	_, err := s.svc.Permissions.Create(id, &drive.Permission{Role: "reader", Type: "anyone"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("setting public permission on %s: %w", id, err)
	}
	return nil
}

func (s *driveStore) ShareWith(ctx context.Context, id, email string) error {
	_, err := s.svc.Permissions.Create(id, &drive.Permission{Role: "writer", Type: "user", EmailAddress: email}).
		SendNotificationEmail(false).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sharing %s with %s: %w", id, email, err)
	}
	return nil
}

func (s *driveStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *driveStore) DeleteFolder(ctx context.Context, id string) error {
	if err := s.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("deleting folder %s: %w", id, err)
	}
	slog.Info("Deleted drive folder", "id", id)
	return nil
}
