package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tokenmeta/internal/metadata/handler/mocks"
	"tokenmeta/internal/metadata/models"
	"tokenmeta/internal/metadata/resolve"
	"tokenmeta/internal/metadata/schema"
	dErrors "tokenmeta/pkg/domain-errors"
	"tokenmeta/pkg/platform/httputil"
)

type MetadataHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestMetadataHandlerSuite(t *testing.T) {
	suite.Run(t, new(MetadataHandlerSuite))
}

func (s *MetadataHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, logger, nil, 0).Register(r)
	s.router = r
}

func (s *MetadataHandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *MetadataHandlerSuite) errorBody(rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func sampleView() resolve.View {
	obj := models.NewObject("s1")
	obj.Scalars["name"] = models.String("Token One")
	obj.Entries["entryA"] = []models.Entry{
		{Value: models.Int(1), SequenceNumber: 0, Signatures: []models.Signature{}},
		{Value: models.Int(2), SequenceNumber: 1, Signatures: []models.Signature{}},
	}
	return resolve.Resolve(obj)
}

func (s *MetadataHandlerSuite) TestCreate() {
	s.Run("201 without body", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, payload models.Value) error {
				s.True(payload.Equal(models.MustParse(`{"subject":"s1","name":"Token One"}`)))
				return nil
			})
		rec := s.do(http.MethodPost, "/metadata", `{"subject":"s1","name":"Token One"}`)
		s.Equal(http.StatusCreated, rec.Code)
		s.Empty(rec.Body.String())
		s.Empty(rec.Header().Get("Content-Type"))
		s.NotEmpty(rec.Header().Get("X-Request-ID"))
	})

	s.Run("validation errors render the violation array", func() {
		violations := []schema.Violation{{Path: "", Keyword: schema.KeywordRequired, Message: "must have required property 'subject'"}}
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeValidation, "invalid").WithDetails(violations))
		rec := s.do(http.MethodPost, "/metadata", `{}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.JSONEq(`[{"path":"","keyword":"required","message":"must have required property 'subject'"}]`, rec.Body.String())
	})

	s.Run("existing subject keeps its message on a 500", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(dErrors.New(dErrors.CodeSubjectExists, "subject s1 already exists"))
		rec := s.do(http.MethodPost, "/metadata", `{"subject":"s1"}`)
		s.Equal(http.StatusInternalServerError, rec.Code)
		resp := s.errorBody(rec)
		s.Equal("subjectExistsError", resp.InternalCode)
		s.Equal("subject s1 already exists", resp.Message)
	})

	s.Run("malformed JSON never reaches the service", func() {
		rec := s.do(http.MethodPost, "/metadata", `{"subject":`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("invalidJSON", s.errorBody(rec).InternalCode)
	})
}

func (s *MetadataHandlerSuite) TestRead() {
	s.Run("200 with the resolved object", func() {
		s.service.EXPECT().Read(gomock.Any(), "s1").Return(sampleView(), nil)
		rec := s.do(http.MethodGet, "/metadata/s1", "")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal("application/json", rec.Header().Get("Content-Type"))
		s.JSONEq(`{"subject":"s1","entryA":{"value":2,"sequenceNumber":1,"signatures":[]},"name":"Token One"}`, rec.Body.String())
	})

	s.Run("404 for an unknown subject", func() {
		s.service.EXPECT().Read(gomock.Any(), "nope").
			Return(resolve.View{}, dErrors.New(dErrors.CodeSubjectNotFound, "subject nope not found"))
		rec := s.do(http.MethodGet, "/metadata/nope", "")
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal("subjectNotFoundError", s.errorBody(rec).InternalCode)
	})

	s.Run("store failures hide the cause", func() {
		s.service.EXPECT().Read(gomock.Any(), "s1").
			Return(resolve.View{}, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeStore, "failed to load metadata object"))
		rec := s.do(http.MethodGet, "/metadata/s1", "")
		s.Equal(http.StatusInternalServerError, rec.Code)
		resp := s.errorBody(rec)
		s.Equal("dbError", resp.InternalCode)
		s.NotContains(resp.Message, "EOF")
	})
}

func (s *MetadataHandlerSuite) TestProperties() {
	s.Run("lists names", func() {
		s.service.EXPECT().ListPropertyNames(gomock.Any(), "s1").Return([]string{"subject", "entryA", "name"}, nil)
		rec := s.do(http.MethodGet, "/metadata/s1/properties", "")
		s.Equal(http.StatusOK, rec.Code)
		s.JSONEq(`["subject","entryA","name"]`, rec.Body.String())
	})

	for _, path := range []string{"/metadata/s1/property/name", "/metadata/s1/properties/name"} {
		s.Run("reads one property at "+path, func() {
			s.service.EXPECT().ReadProperty(gomock.Any(), "s1", "name").Return(sampleView().Only("name"), nil)
			rec := s.do(http.MethodGet, path, "")
			s.Equal(http.StatusOK, rec.Code)
			s.JSONEq(`{"name":"Token One"}`, rec.Body.String())
		})
	}

	s.Run("404 for a missing property", func() {
		s.service.EXPECT().ReadProperty(gomock.Any(), "s1", "logo").
			Return(resolve.View{}, dErrors.New(dErrors.CodePropertyNotFound, "property logo not found on subject s1"))
		rec := s.do(http.MethodGet, "/metadata/s1/property/logo", "")
		s.Equal(http.StatusNotFound, rec.Code)
		s.Equal("propertyNotFoundError", s.errorBody(rec).InternalCode)
	})
}

func (s *MetadataHandlerSuite) TestUpdate() {
	s.Run("204 on success", func() {
		s.service.EXPECT().Update(gomock.Any(), "s1", gomock.Any()).Return(nil)
		rec := s.do(http.MethodPut, "/metadata/s1", `{"name":"Renamed"}`)
		s.Equal(http.StatusNoContent, rec.Code)
		s.Empty(rec.Header().Get("Content-Type"))
	})

	s.Run("400 for an older entry", func() {
		s.service.EXPECT().Update(gomock.Any(), "s1", gomock.Any()).
			Return(dErrors.New(dErrors.CodeOlderEntry, "entries out of sequence"))
		rec := s.do(http.MethodPut, "/metadata/s1", `{}`)
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Equal("olderEntryError", s.errorBody(rec).InternalCode)
	})
}

func (s *MetadataHandlerSuite) TestQuery() {
	s.service.EXPECT().Query(gomock.Any(), gomock.Any()).Return([]resolve.View{sampleView().Project([]string{"name"})}, nil)
	rec := s.do(http.MethodPost, "/metadata/query", `{"subjects":["s1"],"properties":["name"]}`)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[{"subject":"s1","name":"Token One"}]`, rec.Body.String())
}

func (s *MetadataHandlerSuite) TestPanicIsRecovered() {
	s.service.EXPECT().Read(gomock.Any(), "s1").DoAndReturn(func(context.Context, string) (resolve.View, error) {
		panic("boom")
	})
	rec := s.do(http.MethodGet, "/metadata/s1", "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("unmappedError", s.errorBody(rec).InternalCode)
}

func TestUnknownRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := chi.NewRouter()
	New(mocks.NewMockService(ctrl), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 0).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/metadata/s1", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodGet)
}
