package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"billfactor/crypto"
	"billfactor/native/factoring"
)

const (
	codeFactoringNotFound          = -32040
	codeFactoringInvalidState      = -32041
	codeFactoringUnauthorized      = -32042
	codeFactoringInvalidInput      = -32043
	codeFactoringInsufficientFunds = -32044
	codeFactoringPaused            = -32045
	codeFactoringReentrant         = -32046
	codeFactoringInternal          = -32047
)

type methodHandler func(s *Server, ctx context.Context, raw json.RawMessage) (interface{}, error)

type method struct {
	mutating bool
	handler  methodHandler
}

var methods = map[string]method{
	"factoring_createBillRequest":    {true, (*Server).handleCreateBillRequest},
	"factoring_cancelBillRequest":    {true, (*Server).handleCancelBillRequest},
	"factoring_createOffer":          {true, (*Server).handleCreateOffer},
	"factoring_withdrawOffer":        {true, (*Server).handleWithdrawOffer},
	"factoring_acceptOffer":          {true, (*Server).handleAcceptOffer},
	"factoring_completeBill":         {true, (*Server).handleCompleteBill},
	"factoring_markBillDefaulted":    {true, (*Server).handleMarkBillDefaulted},
	"factoring_transferBill":         {true, (*Server).handleTransferBill},
	"factoring_approve":              {true, (*Server).handleApprove},
	"factoring_setApprovalForAll":    {true, (*Server).handleSetApprovalForAll},
	"factoring_withdrawFromPool":     {true, (*Server).handleWithdrawFromPool},
	"factoring_setDefaultConditions": {true, (*Server).handleSetDefaultConditions},
	"factoring_pause":                {true, (*Server).handlePause},
	"factoring_unpause":              {true, (*Server).handleUnpause},
	"factoring_grantRole":            {true, (*Server).handleGrantRole},
	"factoring_revokeRole":           {true, (*Server).handleRevokeRole},

	"factoring_getBillRequest":          {false, (*Server).handleGetBillRequest},
	"factoring_getOffer":                {false, (*Server).handleGetOffer},
	"factoring_getOffersForBillRequest": {false, (*Server).handleGetOffersForBillRequest},
	"factoring_getBill":                 {false, (*Server).handleGetBill},
	"factoring_getBillWithOwner":        {false, (*Server).handleGetBillWithOwner},
	"factoring_ownerOf":                 {false, (*Server).handleOwnerOf},
	"factoring_getBillsByOwner":         {false, (*Server).handleGetBillsByOwner},
	"factoring_getHoldings":             {false, (*Server).handleGetHoldings},
	"factoring_getApproved":             {false, (*Server).handleGetApproved},
	"factoring_isApprovedForAll":        {false, (*Server).handleIsApprovedForAll},
	"factoring_getPoolBalance":          {false, (*Server).handleGetPoolBalance},
	"factoring_getDefaultConditions":    {false, (*Server).handleGetDefaultConditions},
	"factoring_status":                  {false, (*Server).handleStatus},
	"factoring_hasRole":                 {false, (*Server).handleHasRole},
	"bank_getBalance":                   {false, (*Server).handleGetBalance},
}

// engineFailure maps a factoring error to its JSON-RPC representation.
func engineFailure(err error) *rpcFailure {
	data := err.Error()
	switch factoring.KindOf(err) {
	case factoring.KindNotFound:
		return failure(http.StatusNotFound, codeFactoringNotFound, "not_found", data)
	case factoring.KindInvalidState:
		return failure(http.StatusConflict, codeFactoringInvalidState, "invalid_state", data)
	case factoring.KindUnauthorized:
		return failure(http.StatusForbidden, codeFactoringUnauthorized, "unauthorized", data)
	case factoring.KindInvalidInput:
		return failure(http.StatusBadRequest, codeFactoringInvalidInput, "invalid_input", data)
	case factoring.KindInsufficientFunds:
		return failure(http.StatusConflict, codeFactoringInsufficientFunds, "insufficient_funds", data)
	case factoring.KindPaused:
		return failure(http.StatusServiceUnavailable, codeFactoringPaused, "paused", data)
	case factoring.KindReentrant:
		return failure(http.StatusConflict, codeFactoringReentrant, "reentrant_call", data)
	default:
		return failure(http.StatusInternalServerError, codeFactoringInternal, "internal_error", data)
	}
}

type callerParams struct {
	Caller string `json:"caller"`
}

type createRequestParams struct {
	Caller      string `json:"caller"`
	TotalAmount string `json:"totalAmount"`
	DueDate     uint64 `json:"dueDate"`
}

type requestIDParams struct {
	Caller    string `json:"caller,omitempty"`
	RequestID uint64 `json:"requestId"`
}

type offerIDParams struct {
	Caller  string `json:"caller,omitempty"`
	OfferID uint64 `json:"offerId"`
}

type billIDParams struct {
	Caller string `json:"caller,omitempty"`
	BillID uint64 `json:"billId"`
}

type conditionsJSON struct {
	FeeBps     uint32 `json:"feeBps"`
	UpfrontBps uint32 `json:"upfrontBps"`
	OwnerBps   uint32 `json:"ownerBps"`
}

type createOfferParams struct {
	Caller     string          `json:"caller"`
	RequestID  uint64          `json:"requestId"`
	Currency   string          `json:"currency"`
	Conditions *conditionsJSON `json:"conditions,omitempty"`
}

type transferBillParams struct {
	Caller string `json:"caller"`
	From   string `json:"from"`
	To     string `json:"to"`
	BillID uint64 `json:"billId"`
}

type approveParams struct {
	Caller  string `json:"caller"`
	BillID  uint64 `json:"billId"`
	Spender string `json:"spender"`
}

type approvalForAllParams struct {
	Caller   string `json:"caller"`
	Owner    string `json:"owner,omitempty"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type poolParams struct {
	Caller   string `json:"caller,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency"`
}

type setConditionsParams struct {
	Caller string `json:"caller"`
	conditionsJSON
}

type roleParams struct {
	Caller  string `json:"caller,omitempty"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type balanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type billRequestJSON struct {
	ID          uint64 `json:"id"`
	Debtor      string `json:"debtor"`
	TotalAmount string `json:"totalAmount"`
	DueDate     uint64 `json:"dueDate"`
	CreatedAt   uint64 `json:"createdAt"`
	Status      string `json:"status"`
}

type offerJSON struct {
	ID         uint64         `json:"id"`
	RequestID  uint64         `json:"requestId"`
	Lender     string         `json:"lender"`
	Currency   string         `json:"currency"`
	Conditions conditionsJSON `json:"conditions"`
	Deposit    string         `json:"deposit"`
	CreatedAt  uint64         `json:"createdAt"`
	Status     string         `json:"status"`
}

type billJSON struct {
	ID              uint64         `json:"id"`
	Debtor          string         `json:"debtor"`
	Lender          string         `json:"lender"`
	Currency        string         `json:"currency"`
	TotalAmount     string         `json:"totalAmount"`
	UpfrontPaid     string         `json:"upfrontPaid"`
	RemainingAmount string         `json:"remainingAmount"`
	DueDate         uint64         `json:"dueDate"`
	Status          string         `json:"status"`
	Conditions      conditionsJSON `json:"conditions"`
	AcceptedOfferID uint64         `json:"acceptedOfferId"`
	CreatedAt       uint64         `json:"createdAt"`
	ClosedAt        uint64         `json:"closedAt,omitempty"`
	Holder          *string        `json:"holder,omitempty"`
}

type settlementJSON struct {
	BillID         uint64 `json:"billId"`
	Holder         string `json:"holder"`
	Debtor         string `json:"debtor"`
	Currency       string `json:"currency"`
	OwnerShare     string `json:"ownerShare"`
	FeeShare       string `json:"feeShare"`
	OwnerPayment   string `json:"ownerPayment"`
	DebtorResidual string `json:"debtorResidual"`
}

type amountJSON struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

type statusJSON struct {
	Paused     bool     `json:"paused"`
	Currencies []string `json:"currencies"`
	Vault      string   `json:"vault"`
	Owner      string   `json:"owner,omitempty"`
}

func decodeParams(raw json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return invalidParams(err)
	}
	return nil
}

func parseAddressField(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, invalidParams(fmt.Errorf("%s required", field))
	}
	addr, err := crypto.ParseAddress(trimmed)
	if err != nil {
		return [20]byte{}, invalidParams(fmt.Errorf("%s: %w", field, err))
	}
	return addr, nil
}

func parsePositiveBigInt(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams(fmt.Errorf("%s required", field))
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams(fmt.Errorf("%s: invalid amount %q", field, trimmed))
	}
	if amount.Sign() <= 0 {
		return nil, invalidParams(fmt.Errorf("%s must be positive", field))
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.FromBytes20(addr).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func conditionsFrom(c factoring.Conditions) conditionsJSON {
	return conditionsJSON{FeeBps: c.FeeBps, UpfrontBps: c.UpfrontBps, OwnerBps: c.OwnerBps}
}

func (c conditionsJSON) toConditions() factoring.Conditions {
	return factoring.Conditions{FeeBps: c.FeeBps, UpfrontBps: c.UpfrontBps, OwnerBps: c.OwnerBps}
}

func formatRequest(r *factoring.BillRequest) billRequestJSON {
	return billRequestJSON{
		ID:          r.ID,
		Debtor:      formatAddress(r.Debtor),
		TotalAmount: formatAmount(r.TotalAmount),
		DueDate:     r.DueDate,
		CreatedAt:   r.CreatedAt,
		Status:      r.Status.String(),
	}
}

func formatOffer(o *factoring.Offer) offerJSON {
	return offerJSON{
		ID:         o.ID,
		RequestID:  o.BillRequestID,
		Lender:     formatAddress(o.Lender),
		Currency:   o.Currency,
		Conditions: conditionsFrom(o.Conditions),
		Deposit:    formatAmount(o.DepositedAmount),
		CreatedAt:  o.CreatedAt,
		Status:     o.Status.String(),
	}
}

func formatBill(b *factoring.Bill) billJSON {
	return billJSON{
		ID:              b.ID,
		Debtor:          formatAddress(b.Debtor),
		Lender:          formatAddress(b.Lender),
		Currency:        b.Currency,
		TotalAmount:     formatAmount(b.TotalAmount),
		UpfrontPaid:     formatAmount(b.UpfrontPaid),
		RemainingAmount: formatAmount(b.RemainingAmount),
		DueDate:         b.DueDate,
		Status:          b.Status.String(),
		Conditions:      conditionsFrom(b.Conditions),
		AcceptedOfferID: b.AcceptedOfferID,
		CreatedAt:       b.CreatedAt,
		ClosedAt:        b.ClosedAt,
	}
}

func formatSettlement(st *factoring.Settlement) settlementJSON {
	return settlementJSON{
		BillID:         st.BillID,
		Holder:         formatAddress(st.Holder),
		Debtor:         formatAddress(st.Debtor),
		Currency:       st.Currency,
		OwnerShare:     formatAmount(st.OwnerShare),
		FeeShare:       formatAmount(st.FeeShare),
		OwnerPayment:   formatAmount(st.OwnerPayment),
		DebtorResidual: formatAmount(st.DebtorResidual),
	}
}

func formatIDs(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}

func (s *Server) handleCreateBillRequest(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p createRequestParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	total, err := parsePositiveBigInt("totalAmount", p.TotalAmount)
	if err != nil {
		return nil, err
	}
	req, err := s.node.CreateBillRequest(caller, total, p.DueDate)
	if err != nil {
		return nil, err
	}
	return formatRequest(req), nil
}

func (s *Server) handleCancelBillRequest(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p requestIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	req, err := s.node.CancelBillRequest(caller, p.RequestID)
	if err != nil {
		return nil, err
	}
	return formatRequest(req), nil
}

// handleCreateOffer falls back to the module default conditions when none are
// supplied.
func (s *Server) handleCreateOffer(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p createOfferParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	var cond factoring.Conditions
	if p.Conditions != nil {
		cond = p.Conditions.toConditions()
	} else {
		defaults, ok, err := s.node.GetDefaultConditions()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, invalidParams(errors.New("conditions required: no defaults configured"))
		}
		cond = defaults
	}
	offer, err := s.node.CreateOffer(caller, p.RequestID, p.Currency, cond)
	if err != nil {
		return nil, err
	}
	return formatOffer(offer), nil
}

func (s *Server) handleWithdrawOffer(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p offerIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	offer, err := s.node.WithdrawOffer(caller, p.OfferID)
	if err != nil {
		return nil, err
	}
	return formatOffer(offer), nil
}

func (s *Server) handleAcceptOffer(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p offerIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	bill, err := s.node.AcceptOffer(caller, p.OfferID)
	if err != nil {
		return nil, err
	}
	return formatBill(bill), nil
}

func (s *Server) handleCompleteBill(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p billIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	settlement, err := s.node.CompleteBill(caller, p.BillID)
	if err != nil {
		return nil, err
	}
	return formatSettlement(settlement), nil
}

func (s *Server) handleMarkBillDefaulted(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p billIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	bill, err := s.node.MarkBillDefaulted(caller, p.BillID)
	if err != nil {
		return nil, err
	}
	return formatBill(bill), nil
}

func (s *Server) handleTransferBill(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p transferBillParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	from, err := parseAddressField("from", p.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddressField("to", p.To)
	if err != nil {
		return nil, err
	}
	if err := s.node.TransferBill(caller, from, to, p.BillID); err != nil {
		return nil, err
	}
	return "ok", nil
}

// handleApprove clears the approval when spender is empty.
func (s *Server) handleApprove(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p approveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	var spender [20]byte
	if strings.TrimSpace(p.Spender) != "" {
		if spender, err = parseAddressField("spender", p.Spender); err != nil {
			return nil, err
		}
	}
	if err := s.node.Approve(caller, p.BillID, spender); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) handleSetApprovalForAll(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p approvalForAllParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddressField("operator", p.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.node.SetApprovalForAll(caller, operator, p.Approved); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) handleWithdrawFromPool(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p poolParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := parsePositiveBigInt("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	remaining, err := s.node.WithdrawFromPool(caller, amount, p.Currency)
	if err != nil {
		return nil, err
	}
	return amountJSON{Currency: factoring.NormalizeCurrency(p.Currency), Amount: formatAmount(remaining)}, nil
}

func (s *Server) handleSetDefaultConditions(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p setConditionsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	if err := s.node.SetDefaultConditions(caller, p.conditionsJSON.toConditions()); err != nil {
		return nil, err
	}
	return p.conditionsJSON, nil
}

func (s *Server) handlePause(_ context.Context, raw json.RawMessage) (interface{}, error) {
	return s.setPaused(raw, true)
}

func (s *Server) handleUnpause(_ context.Context, raw json.RawMessage) (interface{}, error) {
	return s.setPaused(raw, false)
}

func (s *Server) setPaused(raw json.RawMessage, paused bool) (interface{}, error) {
	var p callerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	if paused {
		err = s.node.Pause(caller)
	} else {
		err = s.node.Unpause(caller)
	}
	if err != nil {
		return nil, err
	}
	return map[string]bool{"paused": paused}, nil
}

func (s *Server) handleGrantRole(_ context.Context, raw json.RawMessage) (interface{}, error) {
	return s.updateRole(raw, true)
}

func (s *Server) handleRevokeRole(_ context.Context, raw json.RawMessage) (interface{}, error) {
	return s.updateRole(raw, false)
}

func (s *Server) updateRole(raw json.RawMessage, grant bool) (interface{}, error) {
	var p roleParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	caller, err := parseAddressField("caller", p.Caller)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddressField("address", p.Address)
	if err != nil {
		return nil, err
	}
	if grant {
		err = s.node.GrantRole(caller, p.Role, addr)
	} else {
		err = s.node.RevokeRole(caller, p.Role, addr)
	}
	if err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) handleGetBillRequest(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p requestIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	req, err := s.node.GetBillRequest(p.RequestID)
	if err != nil {
		return nil, err
	}
	return formatRequest(req), nil
}

func (s *Server) handleGetOffer(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p offerIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	offer, err := s.node.GetOffer(p.OfferID)
	if err != nil {
		return nil, err
	}
	return formatOffer(offer), nil
}

func (s *Server) handleGetOffersForBillRequest(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p requestIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	offers, err := s.node.GetOffersForBillRequest(p.RequestID)
	if err != nil {
		return nil, err
	}
	out := make([]offerJSON, 0, len(offers))
	for _, offer := range offers {
		out = append(out, formatOffer(offer))
	}
	return out, nil
}

func (s *Server) handleGetBill(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p billIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	bill, err := s.node.GetBill(p.BillID)
	if err != nil {
		return nil, err
	}
	return formatBill(bill), nil
}

func (s *Server) handleGetBillWithOwner(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p billIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	bill, holder, err := s.node.GetBillWithOwner(p.BillID)
	if err != nil {
		return nil, err
	}
	out := formatBill(bill)
	if formatted := formatAddress(holder); formatted != "" {
		out.Holder = &formatted
	}
	return out, nil
}

func (s *Server) handleOwnerOf(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p billIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	holder, err := s.node.CurrentHolder(p.BillID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"holder": formatAddress(holder)}, nil
}

func (s *Server) handleGetBillsByOwner(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p ownerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddressField("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	ids, err := s.node.GetBillsByOwner(owner)
	if err != nil {
		return nil, err
	}
	return formatIDs(ids), nil
}

func (s *Server) handleGetHoldings(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p ownerParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddressField("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	ids, err := s.node.GetHoldings(owner)
	if err != nil {
		return nil, err
	}
	return formatIDs(ids), nil
}

func (s *Server) handleGetApproved(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p billIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	spender, _, err := s.node.GetApproved(p.BillID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"spender": formatAddress(spender)}, nil
}

func (s *Server) handleIsApprovedForAll(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p approvalForAllParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	owner, err := parseAddressField("owner", p.Owner)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddressField("operator", p.Operator)
	if err != nil {
		return nil, err
	}
	ok, err := s.node.IsApprovedForAll(owner, operator)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"approved": ok}, nil
}

func (s *Server) handleGetPoolBalance(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p poolParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	pool, err := s.node.GetPoolBalance(p.Currency)
	if err != nil {
		return nil, err
	}
	return amountJSON{Currency: factoring.NormalizeCurrency(p.Currency), Amount: formatAmount(pool)}, nil
}

func (s *Server) handleGetDefaultConditions(_ context.Context, _ json.RawMessage) (interface{}, error) {
	cond, ok, err := s.node.GetDefaultConditions()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, failure(http.StatusNotFound, codeFactoringNotFound, "not_found", "default conditions not set")
	}
	return conditionsFrom(cond), nil
}

func (s *Server) handleStatus(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return statusJSON{
		Paused:     s.node.Paused(),
		Currencies: s.node.Currencies(),
		Vault:      formatAddress(s.node.Vault()),
		Owner:      formatAddress(s.node.Owner()),
	}, nil
}

func (s *Server) handleHasRole(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p roleParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddressField("address", p.Address)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"hasRole": s.node.HasRole(p.Role, addr)}, nil
}

func (s *Server) handleGetBalance(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p balanceParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	addr, err := parseAddressField("address", p.Address)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.Balance(p.Token, addr)
	if err != nil {
		return nil, err
	}
	return amountJSON{Currency: factoring.NormalizeCurrency(p.Token), Amount: formatAmount(balance)}, nil
}
