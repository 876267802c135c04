package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"just_us/internal/state"
)

// Prefs - локальные настройки клиента, которые не хранятся на сервере.
type Prefs struct {
	SoundAllowed     bool   `yaml:"sound_allowed"`
	ReminderInterval string `yaml:"reminder_interval,omitempty"`
}

func DefaultPrefs() *Prefs {
	return &Prefs{SoundAllowed: true}
}

// DefaultPrefsPath - отдельный файл для development, чтобы не смешивать настройки окружений.
func DefaultPrefsPath(environment string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	name := "prefs.yaml"
	if environment == "development" {
		name = "prefs.dev.yaml"
	}
	return filepath.Join(dir, "just_us", name), nil
}

// LoadPrefs возвращает значения по умолчанию, если файла еще нет.
func LoadPrefs(path string) (*Prefs, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPrefs(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prefs file: %w", err)
	}

	p := DefaultPrefs()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse prefs file: %w", err)
	}
	if _, err := p.Reminder(); err != nil {
		return nil, err
	}
	return p, nil
}

func SavePrefs(p *Prefs, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create prefs dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write prefs file: %w", err)
	}
	return nil
}

// Reminder - интервал напоминаний; пустая строка значит "выключено".
func (p *Prefs) Reminder() (time.Duration, error) {
	if p.ReminderInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.ReminderInterval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid reminder_interval %q", p.ReminderInterval)
	}
	return d, nil
}

// ClientState строит сторы клиента из настроек.
func (p *Prefs) ClientState() *state.ClientState {
	reminder, _ := p.Reminder()
	return state.NewClientState(p.SoundAllowed, reminder)
}

// Persist сохраняет настройки при каждом изменении соответствующих сторов.
// Возвращает функцию отписки.
func Persist(st *state.ClientState, path string, onError func(error)) func() {
	save := func() {
		p := &Prefs{SoundAllowed: st.SoundAllowed.Get()}
		if d := st.ReminderInterval.Get(); d > 0 {
			p.ReminderInterval = d.String()
		}
		if err := SavePrefs(p, path); err != nil && onError != nil {
			onError(err)
		}
	}

	unsubSound := st.SoundAllowed.Subscribe(func(bool) { save() })
	unsubReminder := st.ReminderInterval.Subscribe(func(time.Duration) { save() })
	return func() {
		unsubSound()
		unsubReminder()
	}
}
