package coordinator

import (
	"strconv"

	logs "github.com/danmuck/smplog"
)

// GlobalGroup is the origin group of typed globals. It is never wiped by a
// stage.
const GlobalGroup = "Global"

func (c *Coordinator) setGlobal(prefix, key, value string) error {
	if c.rec == nil {
		logs.Warnf("set %s%s failed: %v", prefix, key, ErrNoActiveSlot)
		return ErrNoActiveSlot
	}
	c.rec.Set(prefix+key, value, GlobalGroup)
	return nil
}

func (c *Coordinator) getGlobal(prefix, key string) (string, bool) {
	if c.rec == nil {
		logs.Warnf("get %s%s failed: %v", prefix, key, ErrNoActiveSlot)
		return "", false
	}
	return c.rec.Get(prefix + key)
}

func (c *Coordinator) SetInt(key string, v int) error {
	return c.setGlobal("IVar-", key, strconv.Itoa(v))
}

func (c *Coordinator) GetInt(key string, def int) int {
	raw, ok := c.getGlobal("IVar-", key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logs.Warnf("global int %q holds %q: %v", key, raw, err)
		return def
	}
	return v
}

func (c *Coordinator) SetFloat(key string, v float64) error {
	return c.setGlobal("FVar-", key, strconv.FormatFloat(v, 'g', -1, 64))
}

func (c *Coordinator) GetFloat(key string, def float64) float64 {
	raw, ok := c.getGlobal("FVar-", key)
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logs.Warnf("global float %q holds %q: %v", key, raw, err)
		return def
	}
	return v
}

func (c *Coordinator) SetBool(key string, v bool) error {
	return c.setGlobal("BVar-", key, strconv.FormatBool(v))
}

func (c *Coordinator) GetBool(key string, def bool) bool {
	raw, ok := c.getGlobal("BVar-", key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logs.Warnf("global bool %q holds %q: %v", key, raw, err)
		return def
	}
	return v
}

// SetString stores v. An empty string removes the global.
func (c *Coordinator) SetString(key, v string) error {
	return c.setGlobal("SVar-", key, v)
}

func (c *Coordinator) GetString(key, def string) string {
	raw, ok := c.getGlobal("SVar-", key)
	if !ok {
		return def
	}
	return raw
}
