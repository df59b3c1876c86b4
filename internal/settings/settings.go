package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalid 设置内容或参数不合法
var ErrInvalid = errors.New("invalid settings")

// Strike 行权价，文件中为字符串，也接受数字。
type Strike string

func (s *Strike) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Strike(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("strike: %w", err)
	}
	*s = Strike(n.String())
	return nil
}

// Int 行权价整数值
func (s Strike) Int() (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(s)))
}

// Instrument 单个指数的期权合约设置
type Instrument struct {
	Expiry   string `json:"expiry"`
	StrikeCE Strike `json:"strike_ce"`
	StrikePE Strike `json:"strike_pe"`
	LotSize  int    `json:"lot_size"`
}

type Common struct {
	QuantityLots int    `json:"quantity_lots"`
	Product      string `json:"product"`
}

type UI struct {
	CardsLayout string `json:"cards_layout"`
}

// Settings 下单台的合约设置，整文件 JSON。
type Settings struct {
	Nifty     Instrument `json:"nifty"`
	BankNifty Instrument `json:"banknifty"`
	Common    Common     `json:"common"`
	UI        UI         `json:"ui"`
}

// Default 返回默认设置
func Default() Settings {
	return Settings{
		Nifty:     Instrument{Expiry: "17FEB26", StrikeCE: "25700", StrikePE: "25600", LotSize: 65},
		BankNifty: Instrument{Expiry: "24FEB26", StrikeCE: "60500", StrikePE: "60600", LotSize: 30},
		Common:    Common{QuantityLots: 2, Product: "MIS"},
		UI:        UI{CardsLayout: "horizontal"},
	}
}

// Normalize 去空白、expiry 转大写
func (s *Settings) Normalize() {
	for _, in := range []*Instrument{&s.Nifty, &s.BankNifty} {
		in.Expiry = strings.ToUpper(strings.TrimSpace(in.Expiry))
		in.StrikeCE = Strike(strings.TrimSpace(string(in.StrikeCE)))
		in.StrikePE = Strike(strings.TrimSpace(string(in.StrikePE)))
	}
	s.Common.Product = strings.ToUpper(strings.TrimSpace(s.Common.Product))
	s.UI.CardsLayout = strings.ToLower(strings.TrimSpace(s.UI.CardsLayout))
}

// Validate 校验设置
func (s Settings) Validate() error {
	for name, in := range map[string]Instrument{"nifty": s.Nifty, "banknifty": s.BankNifty} {
		if in.Expiry == "" {
			return fmt.Errorf("%w: %s.expiry is required", ErrInvalid, name)
		}
		if _, err := in.StrikeCE.Int(); err != nil {
			return fmt.Errorf("%w: %s.strike_ce %q is not an integer", ErrInvalid, name, in.StrikeCE)
		}
		if _, err := in.StrikePE.Int(); err != nil {
			return fmt.Errorf("%w: %s.strike_pe %q is not an integer", ErrInvalid, name, in.StrikePE)
		}
		if in.LotSize <= 0 {
			return fmt.Errorf("%w: %s.lot_size must be > 0", ErrInvalid, name)
		}
	}
	if s.Common.QuantityLots <= 0 {
		return fmt.Errorf("%w: common.quantity_lots must be > 0", ErrInvalid)
	}
	if s.Common.Product == "" {
		return fmt.Errorf("%w: common.product is required", ErrInvalid)
	}
	switch s.UI.CardsLayout {
	case "horizontal", "vertical":
	default:
		return fmt.Errorf("%w: ui.cards_layout must be horizontal or vertical", ErrInvalid)
	}
	return nil
}

// Instrument 按名称取合约设置
func (s *Settings) Instrument(name string) (*Instrument, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nifty":
		return &s.Nifty, "NIFTY", nil
	case "banknifty":
		return &s.BankNifty, "BANKNIFTY", nil
	default:
		return nil, "", fmt.Errorf("%w: unknown instrument %q", ErrInvalid, name)
	}
}

// Symbol 拼出期权合约代码，例如 NIFTY17FEB2625700CE
func Symbol(underlying, expiry string, strike Strike, optionType string) string {
	return underlying + expiry + string(strike) + strings.ToUpper(optionType)
}

// Symbols 四个交易卡片对应的合约代码
type Symbols struct {
	NiftyCE     string `json:"nifty_ce"`
	NiftyPE     string `json:"nifty_pe"`
	BankNiftyCE string `json:"banknifty_ce"`
	BankNiftyPE string `json:"banknifty_pe"`
}

func (s Settings) Symbols() Symbols {
	return Symbols{
		NiftyCE:     Symbol("NIFTY", s.Nifty.Expiry, s.Nifty.StrikeCE, "CE"),
		NiftyPE:     Symbol("NIFTY", s.Nifty.Expiry, s.Nifty.StrikePE, "PE"),
		BankNiftyCE: Symbol("BANKNIFTY", s.BankNifty.Expiry, s.BankNifty.StrikeCE, "CE"),
		BankNiftyPE: Symbol("BANKNIFTY", s.BankNifty.Expiry, s.BankNifty.StrikePE, "PE"),
	}
}

// Card 交易页面上的一张合约卡片
type Card struct {
	Label        string `json:"label"`
	Symbol       string `json:"symbol"`
	Instrument   string `json:"instrument"`
	OptionType   string `json:"option_type"`
	LotSize      int    `json:"lot_size"`
	QuantityLots int    `json:"quantity_lots"`
}

func (s Settings) Cards() []Card {
	sym := s.Symbols()
	lots := s.Common.QuantityLots
	return []Card{
		{Label: "NIFTY CE", Symbol: sym.NiftyCE, Instrument: "nifty", OptionType: "ce", LotSize: s.Nifty.LotSize, QuantityLots: lots},
		{Label: "NIFTY PE", Symbol: sym.NiftyPE, Instrument: "nifty", OptionType: "pe", LotSize: s.Nifty.LotSize, QuantityLots: lots},
		{Label: "BNIFTY CE", Symbol: sym.BankNiftyCE, Instrument: "banknifty", OptionType: "ce", LotSize: s.BankNifty.LotSize, QuantityLots: lots},
		{Label: "BNIFTY PE", Symbol: sym.BankNiftyPE, Instrument: "banknifty", OptionType: "pe", LotSize: s.BankNifty.LotSize, QuantityLots: lots},
	}
}

// ParseDirection LONG → 1，SHORT → -1，FLAT/EXIT → 0
func ParseDirection(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return 1, nil
	case "SHORT", "SELL":
		return -1, nil
	case "FLAT", "EXIT":
		return 0, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalid, s)
}

// TargetFor 把方向（+1 多 / -1 空，可为倍数）换算为目标持仓：direction × lot_size × quantity_lots。
func (s Settings) TargetFor(symbol string, direction int) (int, error) {
	for _, c := range s.Cards() {
		if c.Symbol == symbol {
			return direction * c.LotSize * c.QuantityLots, nil
		}
	}
	return 0, fmt.Errorf("%w: symbol %q is not a configured card", ErrInvalid, symbol)
}
