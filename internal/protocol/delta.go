package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/realm-server/internal/entity"
	"github.com/annel0/realm-server/internal/vec"
)

// Delta — разреженная разница двух Snapshot одного id.
// Каждое опциональное поле кодируется трёхзначно:
// отсутствует — без изменений, null — очищено, значение — установлено.
// Составные поля (Sprite, Attach) пересылаются целиком при любом
// изменении под-поля; под-польных дельт нет.
type Delta struct {
	ID uint64

	WX Opt[float64]
	WY Opt[float64]
	WZ Opt[float64]
	VX Opt[float64]
	VY Opt[float64]

	JumpZ  Opt[float64]
	JumpVZ Opt[float64]

	Attach Opt[AttachState]
	Sprite Opt[entity.SpriteState]

	Hidden     Opt[bool]
	Flashing   Opt[bool]
	DeathTimer Opt[float64]
}

// Diff строит дельту между двумя Snapshot одного id.
// Возвращает nil, когда различий нет.
func Diff(prev, curr Snapshot) *Delta {
	d := Delta{ID: curr.ID}
	changed := false

	diffFloat(prev.WX, curr.WX, &d.WX, &changed)
	diffFloat(prev.WY, curr.WY, &d.WY, &changed)
	diffFloat(prev.VX, curr.VX, &d.VX, &changed)
	diffFloat(prev.VY, curr.VY, &d.VY, &changed)

	diffOptFloat(prev.WZ, curr.WZ, &d.WZ, &changed)
	diffOptFloat(prev.JumpZ, curr.JumpZ, &d.JumpZ, &changed)
	diffOptFloat(prev.JumpVZ, curr.JumpVZ, &d.JumpVZ, &changed)
	diffOptFloat(prev.DeathTimer, curr.DeathTimer, &d.DeathTimer, &changed)

	diffOptBool(prev.Hidden, curr.Hidden, &d.Hidden, &changed)
	diffOptBool(prev.Flashing, curr.Flashing, &d.Flashing, &changed)

	if prev.Sprite != curr.Sprite {
		d.Sprite = Set(curr.Sprite)
		changed = true
	}

	switch {
	case prev.Attach == nil && curr.Attach == nil:
	case curr.Attach == nil:
		d.Attach = Clear[AttachState]()
		changed = true
	case prev.Attach == nil || *prev.Attach != *curr.Attach:
		d.Attach = Set(*curr.Attach)
		changed = true
	}

	if !changed {
		return nil
	}
	return &d
}

// Apply накладывает дельту на сущность на месте.
// Клиентские эфемерные поля (счётчик кадров) не затрагиваются.
func Apply(e *entity.Kinematic, d *Delta) error {
	if e == nil {
		// Дельта для неизвестного id — нарушение контракта протокола:
		// базис обязан приходить раньше любой дельты
		return fmt.Errorf("%w: id=%d", ErrUnknownEntity, d.ID)
	}

	if d.WX.Known {
		e.Pos.X = d.WX.Value
	}
	if d.WY.Known {
		e.Pos.Y = d.WY.Value
	}
	if d.VX.Known {
		e.Vel.X = d.VX.Value
	}
	if d.VY.Known {
		e.Vel.Y = d.VY.Value
	}

	if d.WZ.Known {
		if d.WZ.Null {
			e.Elev = nil
		} else {
			v := d.WZ.Value
			e.Elev = &v
		}
	}
	if d.JumpZ.Known {
		if d.JumpZ.Null {
			e.JumpZ = 0
		} else {
			e.JumpZ = d.JumpZ.Value
		}
	}
	if d.JumpVZ.Known {
		if d.JumpVZ.Null {
			e.JumpVZ = nil // Приземление
		} else {
			v := d.JumpVZ.Value
			e.JumpVZ = &v
		}
	}

	if d.Attach.Known {
		if d.Attach.Null {
			e.Parent = 0
			e.Offset = vec.Vec2Float{}
		} else {
			e.Parent = d.Attach.Value.ParentID
			e.Offset = vec.Vec2Float{X: d.Attach.Value.OX, Y: d.Attach.Value.OY}
		}
	}

	if d.Sprite.Known {
		if d.Sprite.Null {
			// Восстановление отсутствующего вложенного объекта —
			// из статической формы по типу сущности
			e.Sprite = entity.DefaultSprite(e.Type)
		} else {
			e.Sprite = d.Sprite.Value
		}
	}

	if d.Hidden.Known {
		e.Hidden = !d.Hidden.Null && d.Hidden.Value
	}
	if d.Flashing.Known {
		e.Flashing = !d.Flashing.Null && d.Flashing.Value
	}
	if d.DeathTimer.Known {
		if d.DeathTimer.Null {
			e.DeathTimer = nil
		} else {
			v := d.DeathTimer.Value
			e.DeathTimer = &v
		}
	}

	return nil
}

func diffFloat(prev, curr float64, out *Opt[float64], changed *bool) {
	if prev != curr {
		*out = Set(curr)
		*changed = true
	}
}

func diffOptFloat(prev, curr *float64, out *Opt[float64], changed *bool) {
	switch {
	case prev == nil && curr == nil:
	case curr == nil:
		*out = Clear[float64]()
		*changed = true
	case prev == nil || *prev != *curr:
		*out = Set(*curr)
		*changed = true
	}
}

func diffOptBool(prev, curr *bool, out *Opt[bool], changed *bool) {
	switch {
	case prev == nil && curr == nil:
	case curr == nil:
		*out = Clear[bool]()
		*changed = true
	case prev == nil || *prev != *curr:
		*out = Set(*curr)
		*changed = true
	}
}

// MarshalJSON сериализует только присутствующие поля
func (d Delta) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, 13)

	idRaw, err := json.Marshal(d.ID)
	if err != nil {
		return nil, err
	}
	m["id"] = idRaw

	put := func(key string, known bool, v json.Marshaler) {
		if !known || err != nil {
			return
		}
		var raw []byte
		raw, err = v.MarshalJSON()
		if err == nil {
			m[key] = raw
		}
	}

	put("wx", d.WX.Known, d.WX)
	put("wy", d.WY.Known, d.WY)
	put("wz", d.WZ.Known, d.WZ)
	put("vx", d.VX.Known, d.VX)
	put("vy", d.VY.Known, d.VY)
	put("jumpZ", d.JumpZ.Known, d.JumpZ)
	put("jumpVz", d.JumpVZ.Known, d.JumpVZ)
	put("attach", d.Attach.Known, d.Attach)
	put("sprite", d.Sprite.Known, d.Sprite)
	put("hidden", d.Hidden.Known, d.Hidden)
	put("flashing", d.Flashing.Known, d.Flashing)
	put("deathTimer", d.DeathTimer.Known, d.DeathTimer)
	if err != nil {
		return nil, err
	}

	return json.Marshal(m)
}

// UnmarshalJSON восстанавливает трёхзначность: отсутствующий ключ
// оставляет поле Unset, null даёт Clear, значение даёт Set
func (d *Delta) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if b, ok := raw["id"]; ok {
		if err := json.Unmarshal(b, &d.ID); err != nil {
			return err
		}
	}

	var err error
	take := func(key string, u json.Unmarshaler) {
		if err != nil {
			return
		}
		if b, ok := raw[key]; ok {
			err = u.UnmarshalJSON(b)
		}
	}

	take("wx", &d.WX)
	take("wy", &d.WY)
	take("wz", &d.WZ)
	take("vx", &d.VX)
	take("vy", &d.VY)
	take("jumpZ", &d.JumpZ)
	take("jumpVz", &d.JumpVZ)
	take("attach", &d.Attach)
	take("sprite", &d.Sprite)
	take("hidden", &d.Hidden)
	take("flashing", &d.Flashing)
	take("deathTimer", &d.DeathTimer)

	return err
}
