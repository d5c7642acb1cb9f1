package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"zerozero/internal/retention"
	"zerozero/pkg/models"
	"zerozero/pkg/store"
	"zerozero/pkg/utils"
)

func (s *Server) handleWhoami(w http.ResponseWriter, _ *http.Request) {
	utils.JSONWrite(w, http.StatusOK, map[string]string{"number": s.app.Number()})
}

func (s *Server) handleRenew(w http.ResponseWriter, _ *http.Request) {
	number, err := s.app.RenewNumber()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"number": number})
}

func (s *Server) handleInbox(w http.ResponseWriter, _ *http.Request) {
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"threads": s.app.Inbox()})
}

func (s *Server) handleRequests(w http.ResponseWriter, _ *http.Request) {
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"threads": s.app.Requests()})
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	items, err := s.app.Queue.LoadAll()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handlePinsList(w http.ResponseWriter, _ *http.Request) {
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"pins": s.app.Pins.All()})
}

type pinCreateReq struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Type   string `json:"type"`
	Expiry string `json:"expiry"`
}

func (s *Server) handlePinCreate(w http.ResponseWriter, r *http.Request) {
	var req pinCreateReq
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ := models.PinDirect
	if req.Type == string(models.PinLobby) {
		typ = models.PinLobby
	}
	pin, err := s.app.CreatePin(req.Value, req.Label, typ, req.Expiry)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, map[string]interface{}{
		"pin": pin,
		"uri": s.app.PinURI(pin),
	})
}

func (s *Server) handlePinRotate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	// an empty body means "rotate to a generated value"
	if err := utils.DecodeJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	pin, err := s.app.RotatePin(mux.Vars(r)["id"], req.Value)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"pin": pin,
		"uri": s.app.PinURI(pin),
	})
}

func (s *Server) handlePinRevoke(w http.ResponseWriter, r *http.Request) {
	if !s.app.RevokePin(mux.Vars(r)["id"]) {
		utils.JSONError(w, http.StatusNotFound, "unknown pin")
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handlePinLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.Pins.SetLabel(mux.Vars(r)["id"], req.Label); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"threadKey": key,
		"messages":  s.app.Threads.ListKey(key, limit),
	})
}

func (s *Server) handleThreadRead(w http.ResponseWriter, r *http.Request) {
	if err := s.app.MarkThreadRead(mux.Vars(r)["key"]); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendReq struct {
	Pin      string `json:"pin"`
	ShortKey string `json:"shortKey"`
	Content  string `json:"content"`
	LocalID  string `json:"localId"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendReq
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LocalID == "" {
		req.LocalID = uuid.NewString()
	}
	msg, err := s.app.SendToPin(req.Pin, req.ShortKey, req.Content, req.LocalID)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

type fileReq struct {
	ContactID string `json:"contactId"`
	Pin       string `json:"pin"`
	ShortKey  string `json:"shortKey"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Data      string `json:"data"` // base64
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	var req fileReq
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := s.app.SendFile(req.ContactID, req.Pin, req.ShortKey, req.Filename, req.MimeType, req.Data)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

func (s *Server) handleContactsList(w http.ResponseWriter, _ *http.Request) {
	contacts, err := s.app.ContactList()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

type contactAddReq struct {
	Number string `json:"number"`
	Pin    string `json:"pin"`
	Label  string `json:"label"`
}

func (s *Server) handleContactAdd(w http.ResponseWriter, r *http.Request) {
	var req contactAddReq
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.app.AddContact(req.Number, req.Pin, req.Label)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, map[string]interface{}{"contact": c})
}

func (s *Server) handleContactRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RemoveContact(mux.Vars(r)["id"]); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleContactSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		LocalID string `json:"localId"`
	}
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LocalID == "" {
		req.LocalID = uuid.NewString()
	}
	msg, err := s.app.SendToContact(mux.Vars(r)["id"], req.Content, req.LocalID)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

func (s *Server) handleContactLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := utils.DecodeJSONBody(r, &req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.app.Contacts.UpdateLabel(mux.Vars(r)["id"], req.Label)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"contact": c})
}

// handleSweep runs one retention pass outside the cron schedule.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "1"
	report, err := retention.RunOnce(retention.Deps{
		Queue: s.app.Queue,
		Pins:  s.app.Pins,
	}, s.dataPath, dryRun)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"report": report})
}

// statusFor maps lookup misses to 404 and everything else to 400.
func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
