package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/middleware"
	"github.com/tallyhq/tally/internal/models"
	"github.com/tallyhq/tally/internal/service"
)

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, token, err := s.auth.Register(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, token, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

type addFriendRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req addFriendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	link, err := s.ledger.AddFriend(r.Context(), middleware.GetUserID(r.Context()), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) handleAcceptFriend(w http.ResponseWriter, r *http.Request) {
	otherID := mux.Vars(r)["id"]
	if err := s.ledger.AcceptFriend(r.Context(), middleware.GetUserID(r.Context()), otherID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	links, err := s.ledger.ListFriends(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

type createGroupRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	group, err := s.ledger.CreateGroup(r.Context(), req.Name, req.Currency, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.ledger.GetGroup(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ledger.ListGroups(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

type joinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var req joinGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	group, err := s.ledger.JoinGroup(r.Context(), req.InviteCode, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.LeaveGroup(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGroupSettlement(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]
	if _, err := s.ledger.GetGroup(r.Context(), groupID, middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	instructions, err := s.ledger.ComputeGroupSettlement(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	if instructions == nil {
		instructions = []calculator.PaymentInstruction{}
	}
	writeJSON(w, http.StatusOK, instructions)
}

type expenseRequest struct {
	GroupID     string               `json:"group_id"`
	Description string               `json:"description"`
	Amount      int64                `json:"amount"`
	Currency    string               `json:"currency"`
	PayerID     string               `json:"payer_id"`
	SplitType   models.SplitType     `json:"split_type"`
	Portions    []calculator.Portion `json:"portions"`
}

func (r expenseRequest) toInput(defaultPayer string) service.ExpenseInput {
	payer := r.PayerID
	if payer == "" {
		payer = defaultPayer
	}
	return service.ExpenseInput{
		GroupID:     r.GroupID,
		Description: r.Description,
		Amount:      r.Amount,
		Currency:    r.Currency,
		PayerID:     payer,
		SplitType:   r.SplitType,
		Portions:    r.Portions,
	}
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	expense, err := s.ledger.AddExpense(r.Context(), req.toInput(middleware.GetUserID(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	expense, err := s.ledger.EditExpense(r.Context(), mux.Vars(r)["id"], req.toInput(middleware.GetUserID(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteExpense(r.Context(), mux.Vars(r)["id"], middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Amount      int64  `json:"amount"`
	GroupID     string `json:"group_id"`
	ExpenseID   string `json:"expense_id"`
	SplitUserID string `json:"split_user_id"`
	Note        string `json:"note"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID := middleware.GetUserID(r.Context())
	from := req.FromUserID
	if from == "" {
		from = userID
	}
	rec, err := s.ledger.RecordPayment(r.Context(), service.PaymentInput{
		FromUserID:  from,
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		GroupID:     req.GroupID,
		ExpenseID:   req.ExpenseID,
		SplitUserID: req.SplitUserID,
		Note:        req.Note,
		RecordedBy:  userID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type templateRequest struct {
	GroupID        string           `json:"group_id"`
	PayerID        string           `json:"payer_id"`
	Description    string           `json:"description"`
	Amount         int64            `json:"amount"`
	Currency       string           `json:"currency"`
	Frequency      models.Frequency `json:"frequency"`
	StartDate      int64            `json:"start_date"`
	EndDate        int64            `json:"end_date"`
	MaxOccurrences int64            `json:"max_occurrences"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	payer := req.PayerID
	if payer == "" {
		payer = middleware.GetUserID(r.Context())
	}
	in := service.TemplateInput{
		GroupID:        req.GroupID,
		PayerID:        payer,
		Description:    req.Description,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Frequency:      req.Frequency,
		StartDate:      time.Unix(req.StartDate, 0),
		MaxOccurrences: req.MaxOccurrences,
	}
	if req.EndDate != 0 {
		in.EndDate = time.Unix(req.EndDate, 0)
	}
	tpl, err := s.ledger.CreateRecurringTemplate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

type runRecurrencesResponse struct {
	Created int               `json:"created"`
	Failed  map[string]string `json:"failed,omitempty"`
}

func (s *Server) handleRunRecurrences(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.RunDueRecurrences(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := runRecurrencesResponse{Created: len(result.Created)}
	if len(result.Failed) > 0 {
		resp.Failed = make(map[string]string, len(result.Failed))
		for id, ferr := range result.Failed {
			resp.Failed[id] = ferr.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	snap, err := s.ledger.GetBalances(r.Context(), middleware.GetUserID(r.Context()), force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
