package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"option-desk-go/infrastructure/logger"
	"option-desk-go/internal/store"

	"go.uber.org/zap"
)

// Store 读写设置文件。每次都从磁盘读取，外部修改立即生效。
type Store struct {
	path     string
	mu       sync.Mutex
	log      *logger.Logger
	onChange func(Settings)
}

func NewStore(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{path: path, log: log.WithFields(map[string]interface{}{"component": "settings"})}
}

// Path 设置文件路径
func (s *Store) Path() string { return s.path }

// OnChange 通过 Save/UpdateStrike 写入后回调
func (s *Store) OnChange(fn func(Settings)) { s.onChange = fn }

// Load 以默认值为底合并磁盘上的各节；文件缺失或损坏时写回默认值。
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Settings {
	merged := Default()
	ok, err := store.ReadJSON(s.path, &merged)
	if err == nil && ok {
		merged.Normalize()
		return merged
	}
	if err != nil {
		s.log.Warn("settings file unreadable, restoring defaults", zap.String("path", s.path), zap.Error(err))
	}
	def := Default()
	if werr := store.WriteJSON(s.path, def); werr != nil {
		s.log.LogError(werr, map[string]interface{}{"op": "write_defaults", "path": s.path})
	}
	return def
}

// Save 校验后整文件写入
func (s *Store) Save(next Settings) (Settings, error) {
	next.Normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	s.mu.Lock()
	err := store.WriteJSON(s.path, next)
	s.mu.Unlock()
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.changed(next)
	return next, nil
}

// StrikeUpdate 行权价调整结果
type StrikeUpdate struct {
	OldStrike string `json:"old_strike"`
	NewStrike string `json:"new_strike"`
	OldSymbol string `json:"old_symbol"`
	NewSymbol string `json:"new_symbol"`
}

// UpdateStrike 把某指数 CE/PE 的行权价加上 delta 并保存。
func (s *Store) UpdateStrike(instrument, optionType string, delta int) (StrikeUpdate, error) {
	optionType = strings.ToLower(strings.TrimSpace(optionType))
	if optionType == "" {
		optionType = "ce"
	}
	if optionType != "ce" && optionType != "pe" {
		return StrikeUpdate{}, fmt.Errorf("%w: option_type must be ce or pe", ErrInvalid)
	}

	s.mu.Lock()
	cur := s.loadLocked()
	in, underlying, err := cur.Instrument(instrument)
	if err != nil {
		s.mu.Unlock()
		return StrikeUpdate{}, err
	}
	field := &in.StrikeCE
	if optionType == "pe" {
		field = &in.StrikePE
	}
	old, err := field.Int()
	if err != nil {
		s.mu.Unlock()
		return StrikeUpdate{}, fmt.Errorf("%w: strike %q is not an integer", ErrInvalid, *field)
	}
	next := old + delta
	if next <= 0 {
		s.mu.Unlock()
		return StrikeUpdate{}, fmt.Errorf("%w: strike would become %d", ErrInvalid, next)
	}
	*field = Strike(strconv.Itoa(next))
	if err := store.WriteJSON(s.path, cur); err != nil {
		s.mu.Unlock()
		return StrikeUpdate{}, fmt.Errorf("save settings: %w", err)
	}
	s.mu.Unlock()

	s.changed(cur)
	return StrikeUpdate{
		OldStrike: strconv.Itoa(old),
		NewStrike: strconv.Itoa(next),
		OldSymbol: Symbol(underlying, in.Expiry, Strike(strconv.Itoa(old)), optionType),
		NewSymbol: Symbol(underlying, in.Expiry, *field, optionType),
	}, nil
}

func (s *Store) changed(cur Settings) {
	s.log.LogEvent("settings_changed", map[string]interface{}{"source": "api", "path": s.path})
	if s.onChange != nil {
		s.onChange(cur)
	}
}

// IsInvalid 判断是否为设置校验错误
func IsInvalid(err error) bool { return errors.Is(err, ErrInvalid) }
