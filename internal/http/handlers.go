package http

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/voiceprintlabs/voiced/internal/featurestore"
)

// allowedAudioExtensions is the upload allow-list, checked by filename
// extension before the clip is handed to the extractor.
var allowedAudioExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".flac": {},
	".m4a":  {},
	".ogg":  {},
	".aac":  {},
}

// RegisterResponse is the response body for POST /api/v1/voices/register.
type RegisterResponse struct {
	RecordID   string `json:"record_id"`
	UserID     string `json:"user_id"`
	PersonName string `json:"person_name"`
	IsSelf     bool   `json:"is_self"`
}

// RecognizeResponse is the response body for POST /api/v1/voices/recognize.
// Best is the highest-similarity match, null when nothing cleared the
// threshold.
type RecognizeResponse struct {
	Matches []featurestore.Match `json:"matches"`
	Best    *featurestore.Match  `json:"best"`
}

// DeleteResponse reports how many records a delete removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// UsersResponse is the response body for GET /api/v1/users.
type UsersResponse struct {
	Users []string `json:"users"`
}

// PersonsResponse is the response body for GET /api/v1/users/:user_id/persons.
type PersonsResponse struct {
	UserID  string                       `json:"user_id"`
	Persons []featurestore.PersonSummary `json:"persons"`
}

// ResetResponse is the response body for POST /api/v1/storage/reset.
type ResetResponse struct {
	CollectionsDropped int `json:"collections_dropped"`
}

// StatusResponse is a generic acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleRegister(c echo.Context) error {
	userID := c.FormValue("user_id")
	personName := c.FormValue("person_name")
	relationship := c.FormValue("relationship")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}
	if personName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "person_name field is required")
	}

	audio, err := s.readAudioFile(c)
	if err != nil {
		return err
	}

	vector, err := s.extractor.Extract(c.Request().Context(), audio)
	if err != nil {
		s.logger.Warn("feature extraction failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "feature extraction failed")
	}

	recordID, err := s.store.Repo.Add(c.Request().Context(), userID, personName, relationship, vector)
	if err != nil {
		return storeError(err)
	}

	return c.JSON(http.StatusCreated, RegisterResponse{
		RecordID:   recordID,
		UserID:     userID,
		PersonName: personName,
		IsSelf:     featurestore.IsSelfRelationship(relationship),
	})
}

func (s *Server) handleRecognize(c echo.Context) error {
	userID := c.FormValue("user_id")

	threshold := s.config.DefaultThreshold
	if raw := c.FormValue("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 32)
		if err != nil || parsed < 0 || parsed > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "threshold must be a number in [0,1]")
		}
		threshold = float32(parsed)
	}

	topK := s.config.DefaultTopK
	if raw := c.FormValue("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "top_k must be a positive integer")
		}
		topK = parsed
	}

	audio, err := s.readAudioFile(c)
	if err != nil {
		return err
	}

	vector, err := s.extractor.Extract(c.Request().Context(), audio)
	if err != nil {
		s.logger.Warn("feature extraction failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "feature extraction failed")
	}

	var matches []featurestore.Match
	if userID != "" {
		matches, err = s.store.Search.SearchTenant(c.Request().Context(), userID, vector, threshold, topK)
	} else {
		matches, err = s.store.Search.SearchAll(c.Request().Context(), vector, threshold, topK)
	}
	if err != nil {
		return storeError(err)
	}

	resp := RecognizeResponse{Matches: matches}
	if len(matches) > 0 {
		resp.Best = &matches[0]
	}
	if resp.Matches == nil {
		resp.Matches = []featurestore.Match{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.store.Stats.ListTenants(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	if users == nil {
		users = []string{}
	}
	return c.JSON(http.StatusOK, UsersResponse{Users: users})
}

func (s *Server) handleListPersons(c echo.Context) error {
	userID := c.Param("user_id")

	persons, err := s.store.Repo.ListPersons(c.Request().Context(), userID)
	if err != nil {
		return storeError(err)
	}
	if persons == nil {
		persons = []featurestore.PersonSummary{}
	}
	return c.JSON(http.StatusOK, PersonsResponse{UserID: userID, Persons: persons})
}

func (s *Server) handleDeleteUser(c echo.Context) error {
	deleted, err := s.store.Repo.DeleteAllForTenant(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (s *Server) handleDeletePerson(c echo.Context) error {
	deleted, err := s.store.Repo.DeleteByPerson(c.Request().Context(), c.Param("user_id"), c.Param("person_name"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

func (s *Server) handleGlobalStats(c echo.Context) error {
	stats, err := s.store.Stats.GlobalStats(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleTenantStats(c echo.Context) error {
	stats, err := s.store.Stats.TenantStats(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleStorageInfo(c echo.Context) error {
	info, err := s.store.Stats.StorageInfo(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleStorageReset(c echo.Context) error {
	dropped, err := s.store.Repo.Reset(c.Request().Context())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, ResetResponse{CollectionsDropped: dropped})
}

func (s *Server) handleCacheClear(c echo.Context) error {
	if s.store.Cache != nil {
		s.store.Cache.Clear()
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "cache cleared"})
}

// readAudioFile pulls the uploaded clip out of the multipart form and checks
// the extension allow-list.
func (s *Server) readAudioFile(c echo.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := allowedAudioExtensions[ext]; !ok {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unsupported audio format: "+ext)
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot open uploaded file")
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	if len(audio) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "uploaded file is empty")
	}
	return audio, nil
}

// storeError maps feature store errors to HTTP status codes.
func storeError(err error) error {
	switch {
	case errors.Is(err, featurestore.ErrInvalidInput), errors.Is(err, featurestore.ErrInvalidVector):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, featurestore.ErrStorageUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
