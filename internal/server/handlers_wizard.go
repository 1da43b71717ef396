package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/progress"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

type stepResponse struct {
	Outcome persist.Outcome `json:"outcome"`
	View    wizard.View     `json:"view"`
}

type transitionResponse struct {
	Result progress.Result `json:"result"`
	View   wizard.View     `json:"view"`
}

type draftResponse struct {
	DraftID string      `json:"draftId"`
	View    wizard.View `json:"view"`
}

type selectRequest struct {
	Value any `json:"value"`
}

type selectResponse struct {
	Record persist.Record `json:"record"`
	View   wizard.View    `json:"view"`
}

// session finds the caller's wizard from the session header or cookie.
func (s *Server) session(r *http.Request) (*wizard.Session, error) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		// a cookie that fails to decode yields a fresh, empty session
		cookie, _ := s.cookies.Get(r, s.cfg.CookieName)
		if cookie != nil {
			id, _ = cookie.Values[sessionValueKey].(string)
		}
	}
	if id == "" {
		return nil, errNoSession
	}
	session, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoSession, id)
	}
	return session, nil
}

func (s *Server) createWizard(w http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.Bundle().NewSession(s.cfg.Collaborator,
		wizard.WithLogger(s.logger),
		wizard.WithAdapterOptions(persist.WithSanitize(s.cfg.Sanitize)),
	)
	if err != nil {
		return nil, err
	}
	s.registry.Add(session)

	cookie, _ := s.cookies.Get(r, s.cfg.CookieName)
	cookie.Values[sessionValueKey] = session.ID()
	if err := cookie.Save(r, w); err != nil {
		s.registry.Remove(session.ID())
		return nil, fmt.Errorf("server: save session cookie: %w", err)
	}
	w.Header().Set(SessionHeader, session.ID())

	s.logger.Info("server: wizard started", "session", session.ID(), "steps", session.Plan().Len())
	return session.View(), nil
}

func (s *Server) getWizard(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	return session.View(), nil
}

func (s *Server) endWizard(w http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	s.registry.Remove(session.ID())

	cookie, _ := s.cookies.Get(r, s.cfg.CookieName)
	delete(cookie.Values, sessionValueKey)
	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		return nil, fmt.Errorf("server: clear session cookie: %w", err)
	}
	return nil, nil
}

func (s *Server) saveSection(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	form, err := decodeRecord(r, false)
	if err != nil {
		return nil, err
	}
	outcome, err := session.OnStepSectionSaved(r.Context(), chi.URLParam(r, "step"), form)
	if err != nil {
		return nil, withView(err, session)
	}
	return stepResponse{Outcome: outcome, View: session.View()}, nil
}

func (s *Server) selectRecord(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	var req selectRequest
	if err := decodeJSON(r, &req, false); err != nil {
		return nil, err
	}
	if req.Value == nil {
		return nil, fmt.Errorf("%w: value is required", errBadRequest)
	}
	record, err := session.SelectRecord(r.Context(), chi.URLParam(r, "step"), numbers(req.Value))
	if err != nil {
		return nil, withView(err, session)
	}
	return selectResponse{Record: record, View: session.View()}, nil
}

func (s *Server) addRow(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	initial, err := decodeRecord(r, true)
	if err != nil {
		return nil, err
	}
	draftID, err := session.AddRow(r.Context(), chi.URLParam(r, "step"), initial)
	if err != nil {
		return nil, withView(err, session)
	}
	return draftResponse{DraftID: draftID, View: session.View()}, nil
}

func (s *Server) saveRow(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	form, err := decodeRecord(r, false)
	if err != nil {
		return nil, err
	}
	outcome, err := session.SaveRow(r.Context(), chi.URLParam(r, "step"), chi.URLParam(r, "draft"), form)
	if err != nil {
		return nil, withView(err, session)
	}
	return stepResponse{Outcome: outcome, View: session.View()}, nil
}

func (s *Server) discardRow(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	if err := session.DiscardRow(chi.URLParam(r, "step"), chi.URLParam(r, "draft")); err != nil {
		return nil, withView(err, session)
	}
	return session.View(), nil
}

func (s *Server) completeRows(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	outcome, err := session.CompleteRows(r.Context(), chi.URLParam(r, "step"))
	if err != nil {
		return nil, withView(err, session)
	}
	return stepResponse{Outcome: outcome, View: session.View()}, nil
}

// goToStep answers 200 for rejected transitions too; the result says why.
func (s *Server) goToStep(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	result := session.OnGoToStep(chi.URLParam(r, "step"))
	return transitionResponse{Result: result, View: session.View()}, nil
}

func (s *Server) goBack(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	result := session.OnGoBack()
	return transitionResponse{Result: result, View: session.View()}, nil
}

func (s *Server) resetWizard(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	result := session.OnReset()
	return transitionResponse{Result: result, View: session.View()}, nil
}

func (s *Server) stepOptions(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	options, err := session.BusinessKeyOptions(r.Context(), chi.URLParam(r, "step"))
	if err != nil {
		return nil, err
	}
	if options == nil {
		options = []persist.KeyOption{}
	}
	return options, nil
}

func (s *Server) relatedRows(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	rows, err := session.RelatedRows(r.Context(), chi.URLParam(r, "step"))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []persist.Record{}
	}
	return rows, nil
}

func (s *Server) stepBlocks(_ http.ResponseWriter, r *http.Request) (any, error) {
	session, err := s.session(r)
	if err != nil {
		return nil, err
	}
	frames, err := session.Blocks(r.Context(), chi.URLParam(r, "step"))
	if err != nil {
		return nil, withView(err, session)
	}
	if frames == nil {
		frames = []persist.Frame{}
	}
	return frames, nil
}
