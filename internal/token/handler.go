package token

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dailycoin/ubi-ledger/internal/asset"
	"github.com/dailycoin/ubi-ledger/internal/auth"
	"github.com/dailycoin/ubi-ledger/internal/calendar"
	"github.com/dailycoin/ubi-ledger/internal/ledger"
	"github.com/dailycoin/ubi-ledger/internal/ubi"
)

// Handler exposes token operations over HTTP. The acting account comes from
// the request context set by the JWT middleware.
type Handler struct {
	service *Service
	symbol  asset.Symbol
}

// NewHandler constructs a token HTTP handler. sym is used when a request does
// not name a currency.
func NewHandler(service *Service, sym asset.Symbol) *Handler {
	return &Handler{service: service, symbol: sym}
}

type balanceResponse struct {
	Owner             string `json:"owner"`
	Balance           string `json:"balance"`
	LastSettlementDay uint32 `json:"last_settlement_day"`
	Payer             string `json:"payer"`
}

type statsResponse struct {
	Symbol    string `json:"symbol"`
	Supply    string `json:"supply"`
	MaxSupply string `json:"max_supply"`
	Issuer    string `json:"issuer"`
	Burned    string `json:"burned"`
	Claims    uint64 `json:"claims"`
}

type portionResponse struct {
	Beneficiary string `json:"beneficiary"`
	Quantity    string `json:"quantity"`
	Percent     uint8  `json:"percent"`
}

type settlementResponse struct {
	Owner         string            `json:"owner"`
	Today         uint32            `json:"today"`
	Settled       bool              `json:"settled"`
	Burned        string            `json:"burned"`
	Claimed       string            `json:"claimed"`
	LostDays      int64             `json:"lost_days"`
	NextClaimDay  int64             `json:"next_claim_day,omitempty"`
	NextClaimDate string            `json:"next_claim_date,omitempty"`
	Shares        []portionResponse `json:"shares,omitempty"`
	Balance       balanceResponse   `json:"balance"`
}

type shareResponse struct {
	Beneficiary string `json:"beneficiary"`
	Percent     uint8  `json:"percent"`
}

func toBalance(b ledger.Balance) balanceResponse {
	return balanceResponse{Owner: b.Owner, Balance: b.Balance.String(), LastSettlementDay: uint32(b.LastSettlementDay), Payer: b.Payer}
}

func toStats(st ledger.Stats) statsResponse {
	return statsResponse{
		Symbol:    st.Symbol().String(),
		Supply:    st.Supply.String(),
		MaxSupply: st.MaxSupply.String(),
		Issuer:    st.Issuer,
		Burned:    st.Burned.String(),
		Claims:    st.Claims,
	}
}

func toSettlement(res ubi.Settlement) settlementResponse {
	sym := res.Balance.Balance.Symbol
	out := settlementResponse{
		Owner:    res.Owner,
		Today:    uint32(res.Today),
		Settled:  res.Settled,
		Burned:   asset.New(res.Burned, sym).String(),
		Claimed:  asset.New(res.Claimed, sym).String(),
		LostDays: res.LostDays,
		Balance:  toBalance(res.Balance),
	}
	if res.Claimed > 0 {
		out.NextClaimDay = res.NextClaimDay
		out.NextClaimDate = calendar.Format(res.NextClaimDay)
	}
	for _, p := range res.Distribution.Portions {
		out.Shares = append(out.Shares, portionResponse{Beneficiary: p.Beneficiary, Quantity: asset.New(p.Amount, sym).String(), Percent: p.Percent})
	}
	return out
}

func toShares(list []ledger.Share) []shareResponse {
	out := make([]shareResponse, 0, len(list))
	for _, sh := range list {
		out = append(out, shareResponse{Beneficiary: sh.Beneficiary, Percent: sh.Percent})
	}
	return out
}

// Today reports the current settlement day.
func (h *Handler) Today(c *fiber.Ctx) error {
	day := h.service.Today()
	return c.JSON(fiber.Map{"day": uint32(day), "date": day.String()})
}

type createRequest struct {
	Issuer        string `json:"issuer"`
	MaximumSupply string `json:"maximum_supply"`
}

// Create registers a currency.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	maxSupply, err := asset.Parse(req.MaximumSupply)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	st, err := h.service.Create(c.UserContext(), req.Issuer, maxSupply)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toStats(st))
}

// Stats returns a currency record.
func (h *Handler) Stats(c *fiber.Ctx) error {
	st, err := h.service.Stats(c.UserContext(), strings.ToUpper(c.Params("symbol")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toStats(st))
}

type quantityRequest struct {
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

func (h *Handler) parseQuantity(c *fiber.Ctx) (quantityRequest, asset.Asset, error) {
	var req quantityRequest
	if err := c.BodyParser(&req); err != nil {
		return req, asset.Asset{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	qty, err := asset.Parse(req.Quantity)
	if err != nil {
		return req, asset.Asset{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if code := c.Params("symbol"); code != "" && !strings.EqualFold(code, qty.Symbol.Code) {
		return req, asset.Asset{}, fiber.NewError(http.StatusBadRequest, "quantity symbol does not match path")
	}
	return req, qty, nil
}

// Issue mints new supply.
func (h *Handler) Issue(c *fiber.Ctx) error {
	req, qty, err := h.parseQuantity(c)
	if err != nil {
		return err
	}
	st, err := h.service.Issue(c.UserContext(), req.To, qty, req.Memo)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toStats(st))
}

// Retire removes supply held by the issuer.
func (h *Handler) Retire(c *fiber.Ctx) error {
	req, qty, err := h.parseQuantity(c)
	if err != nil {
		return err
	}
	st, err := h.service.Retire(c.UserContext(), qty, req.Memo)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toStats(st))
}

// Transfer moves funds from the caller to another account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	req, qty, err := h.parseQuantity(c)
	if err != nil {
		return err
	}
	res, err := h.service.Transfer(c.UserContext(), actor(c), req.To, qty, req.Memo)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"from": toBalance(res.From), "to": toBalance(res.To)})
}

// Burn destroys part of the caller's balance.
func (h *Handler) Burn(c *fiber.Ctx) error {
	_, qty, err := h.parseQuantity(c)
	if err != nil {
		return err
	}
	bal, err := h.service.Burn(c.UserContext(), actor(c), qty)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toBalance(bal))
}

type openRequest struct {
	Owner string `json:"owner"`
}

// Open creates a balance record for the given owner, or the caller, paid for
// by the caller.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	sym, err := asset.ParseSymbol(strings.ToUpper(c.Params("symbol")))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	payer := actor(c)
	owner := req.Owner
	if owner == "" {
		owner = payer
	}
	res, err := h.service.Open(c.UserContext(), owner, sym, payer)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(toSettlement(res))
}

// Close deletes the caller's empty balance record.
func (h *Handler) Close(c *fiber.Ctx) error {
	sym, err := asset.ParseSymbol(strings.ToUpper(c.Params("symbol")))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.Close(c.UserContext(), actor(c), sym); err != nil {
		return httpError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

type claimRequest struct {
	Symbol string `json:"symbol"`
	Strict bool   `json:"strict"`
}

// Claim pays the caller's pending income.
func (h *Handler) Claim(c *fiber.Ctx) error {
	var req claimRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	sym := h.symbol
	if req.Symbol != "" {
		var err error
		if sym, err = asset.ParseSymbol(req.Symbol); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	res, err := h.service.Claim(c.UserContext(), actor(c), sym, req.Strict)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toSettlement(res))
}

// ClaimFor settles another account's income with the caller as payer.
func (h *Handler) ClaimFor(c *fiber.Ctx) error {
	res, err := h.service.ClaimFor(c.UserContext(), c.Params("owner"), h.symbol, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toSettlement(res))
}

// Balance returns an account's balance record.
func (h *Handler) Balance(c *fiber.Ctx) error {
	bal, err := h.service.Balance(c.UserContext(), c.Params("owner"), strings.ToUpper(c.Params("symbol")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toBalance(bal))
}

type shareRequest struct {
	Percent int `json:"percent"`
}

// SetShare sets the caller's share to the path account.
func (h *Handler) SetShare(c *fiber.Ctx) error {
	var req shareRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	list, err := h.service.SetShare(c.UserContext(), actor(c), c.Params("to"), req.Percent)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toShares(list))
}

// ResetShares removes all of the caller's shares.
func (h *Handler) ResetShares(c *fiber.Ctx) error {
	if err := h.service.ResetShare(c.UserContext(), actor(c)); err != nil {
		return httpError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Shares lists an account's shares.
func (h *Handler) Shares(c *fiber.Ctx) error {
	list, err := h.service.Shares(c.UserContext(), c.Params("owner"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(toShares(list))
}

type profileRequest struct {
	Profile string `json:"profile"`
}

// SetProfile stores the caller's profile.
func (h *Handler) SetProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetProfile(c.UserContext(), actor(c), req.Profile); err != nil {
		return httpError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Profile returns an account's profile.
func (h *Handler) Profile(c *fiber.Ctx) error {
	p, err := h.service.Profile(c.UserContext(), c.Params("owner"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"owner": p.Owner, "profile": p.Profile})
}

func actor(c *fiber.Ctx) string {
	name, _ := auth.ActorFrom(c.UserContext())
	return name
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrOverdrawn),
		errors.Is(err, asset.ErrInvalidAmount), errors.Is(err, asset.ErrInvalidSymbol):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNothingDue), errors.Is(err, ledger.ErrNoCoinsAvailable), errors.Is(err, ledger.ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
