package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/schemas"
	"github.com/jonathan/reply-drafter/internal/server/middleware"
	"github.com/jonathan/reply-drafter/internal/types"
	"github.com/jonathan/reply-drafter/internal/voice"
)

// maxDraftBodyBytes bounds request bodies. Review text is capped at 5000
// characters, so this leaves room for multi-byte text and the voice block.
const maxDraftBodyBytes = 64 << 10

// PreviewResponse is the body of POST /drafts/preview.
type PreviewResponse struct {
	Instruction       string             `json:"instruction"`
	SentenceBudget    int                `json:"sentence_budget"`
	LanguageTag       string             `json:"language_tag"`
	Tone              types.Tone         `json:"tone"`
	PromptVersion     string             `json:"prompt_version"`
	BannedListVersion string             `json:"banned_list_version"`
	Profile           types.VoiceProfile `json:"profile"`
	SampleIDs         []uuid.UUID        `json:"sample_ids"`
}

// VoiceSetResponse is the body of GET /orgs/{org_id}/voice-set.
type VoiceSetResponse struct {
	OrgID      uuid.UUID         `json:"org_id"`
	Samples    []string          `json:"samples"`
	SampleIDs  []uuid.UUID       `json:"sample_ids"`
	TotalCost  int               `json:"total_cost"`
	Candidates []voice.Candidate `json:"candidates"`
}

// handleCreateDraft handles POST /drafts.
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	orgID, req, ok := s.readDraftRequest(w, r)
	if !ok {
		return
	}

	reply, err := s.drafter.Draft(r.Context(), orgID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, reply.Response())
}

// handlePreviewDraft handles POST /drafts/preview. The provider is not
// called and nothing is audited.
func (s *Server) handlePreviewDraft(w http.ResponseWriter, r *http.Request) {
	orgID, req, ok := s.readDraftRequest(w, r)
	if !ok {
		return
	}

	preview, err := s.drafter.Preview(r.Context(), orgID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sampleIDs := preview.SampleIDs
	if sampleIDs == nil {
		sampleIDs = []uuid.UUID{}
	}
	s.jsonResponse(w, http.StatusOK, PreviewResponse{
		Instruction:       preview.Request.Text(),
		SentenceBudget:    preview.Request.SentenceBudget,
		LanguageTag:       preview.Request.LanguageTag,
		Tone:              preview.Request.Tone,
		PromptVersion:     preview.Request.PromptVersion,
		BannedListVersion: preview.Request.BannedListVersion,
		Profile:           preview.Profile,
		SampleIDs:         sampleIDs,
	})
}

// handleVoiceSet handles GET /orgs/{org_id}/voice-set. Organizations may
// only inspect their own set.
func (s *Server) handleVoiceSet(w http.ResponseWriter, r *http.Request) {
	authOrg, err := middleware.GetOrgID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	orgID, err := uuid.Parse(r.PathValue("org_id"))
	if err != nil {
		s.writeError(w, &drafting.InputError{Message: "invalid organization ID", Cause: err})
		return
	}
	if orgID != authOrg {
		s.writeError(w, &drafting.EntitlementError{Message: "token does not grant access to this organization"})
		return
	}

	set := s.drafter.VoiceSet(r.Context(), orgID, s.curation)
	resp := VoiceSetResponse{
		OrgID:      orgID,
		Samples:    set.Samples,
		SampleIDs:  set.SampleIDs,
		TotalCost:  set.TotalCost,
		Candidates: set.Candidates,
	}
	if resp.Samples == nil {
		resp.Samples = []string{}
	}
	if resp.SampleIDs == nil {
		resp.SampleIDs = []uuid.UUID{}
	}
	if resp.Candidates == nil {
		resp.Candidates = []voice.Candidate{}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// readDraftRequest validates the body against the request schema and
// decodes it. On failure the error response has been written.
func (s *Server) readDraftRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, types.DraftRequest, bool) {
	var req types.DraftRequest

	orgID, err := middleware.GetOrgID(r)
	if err != nil {
		s.writeError(w, err)
		return uuid.Nil, req, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDraftBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.jsonResponse(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "invalid_request", Message: "request body too large"})
			return uuid.Nil, req, false
		}
		s.writeError(w, &drafting.InputError{Message: "failed to read request body", Cause: err})
		return uuid.Nil, req, false
	}

	if err := schemas.ValidateDraftRequest(body); err != nil {
		s.writeError(w, err)
		return uuid.Nil, req, false
	}

	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, &drafting.InputError{Message: "invalid JSON body", Cause: err})
		return uuid.Nil, req, false
	}

	return orgID, req, true
}
