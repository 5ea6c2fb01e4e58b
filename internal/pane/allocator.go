package pane

import (
	"context"
	"regexp"
	"strconv"

	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/models"
	"roost/internal/repo"
)

// Имя вида: <имя>@<rows>x<cols>, например rack_a@3x4.
var nameRe = regexp.MustCompile(`^([A-Za-z0-9_]+)@([0-9]+)x([0-9]+)$`)

const maxMatrixDim = 9

// Allocator — раздача pane-слотов: создание сетки, first-fit привязка
// устройств, освобождение, удаление вида.
type Allocator struct {
	db *gorm.DB
}

func NewAllocator(db *gorm.DB) *Allocator { return &Allocator{db: db} }

type CreateInput struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	CabinetID uint   `json:"cabinet_id"`
	// Явный override размеров; для map-типа обязателен.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Create создаёт вид плюс по одному пустому слоту на ячейку (row, col)
// в одной транзакции: падение на слотах откатывает и сам вид.
func (a *Allocator) Create(ctx context.Context, in CreateInput) (*models.PaneView, error) {
	m := nameRe.FindStringSubmatch(in.Name)
	if m == nil {
		return nil, apperr.Validation("pane view name %q must match name@RxC", in.Name)
	}
	rows, _ := strconv.Atoi(m[2])
	cols, _ := strconv.Atoi(m[3])

	typ := in.Type
	if typ == "" {
		typ = models.PaneViewTypeMatrix
	}
	switch typ {
	case models.PaneViewTypeMatrix:
		if in.Width > 0 && in.Height > 0 {
			rows, cols = in.Height, in.Width
		}
		if rows > maxMatrixDim || cols > maxMatrixDim {
			return nil, apperr.Validation("matrix pane view is limited to %dx%d", maxMatrixDim, maxMatrixDim)
		}
	case models.PaneViewTypeMap:
		if in.Width <= 0 || in.Height <= 0 {
			return nil, apperr.Validation("map pane view requires explicit width and height")
		}
		rows, cols = in.Height, in.Width
	default:
		return nil, apperr.Validation("unknown pane view type %q", typ)
	}
	if rows <= 0 || cols <= 0 {
		return nil, apperr.Validation("pane view dimensions must be positive")
	}

	view := &models.PaneView{
		Name:      in.Name,
		Type:      typ,
		CabinetID: in.CabinetID,
		Rows:      rows,
		Cols:      cols,
		Width:     in.Width,
		Height:    in.Height,
	}
	err := a.db.Transaction(func(tx *gorm.DB) error {
		panes := repo.NewPaneStore(tx)
		if err := panes.CreateView(ctx, view); err != nil {
			return err
		}
		slots := make([]models.PaneSlot, 0, rows*cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				slots = append(slots, models.PaneSlot{
					PaneViewID: view.ID,
					Row:        r,
					Col:        c,
					Status:     models.PaneSlotStatusEmpty,
				})
			}
		}
		return panes.CreateSlots(ctx, slots)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// LinkToSlot сажает устройство в конкретный слот; слот обязан быть пуст.
func (a *Allocator) LinkToSlot(ctx context.Context, slotID uint, deviceLabel string) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		panes := repo.NewPaneStore(tx)
		slot, err := panes.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if slot.DeviceID != nil || slot.Status != models.PaneSlotStatusEmpty {
			return apperr.Conflict("pane slot %d is occupied", slotID)
		}
		dev, err := a.deviceFree(ctx, tx, deviceLabel)
		if err != nil {
			return err
		}
		return panes.SetSlotDevice(ctx, slot.ID, &dev.ID)
	})
}

// LinkToView сажает устройство в первый пустой слот вида (first-fit в
// порядке (row, col), без иных тай-брейков).
func (a *Allocator) LinkToView(ctx context.Context, viewID uint, deviceLabel string) (*models.PaneSlot, error) {
	var out *models.PaneSlot
	err := a.db.Transaction(func(tx *gorm.DB) error {
		panes := repo.NewPaneStore(tx)
		if _, err := panes.GetView(ctx, viewID); err != nil {
			return err
		}
		slot, err := panes.FirstEmptySlot(ctx, viewID)
		if err != nil {
			return err
		}
		dev, err := a.deviceFree(ctx, tx, deviceLabel)
		if err != nil {
			return err
		}
		if err := panes.SetSlotDevice(ctx, slot.ID, &dev.ID); err != nil {
			return err
		}
		slot.DeviceID = &dev.ID
		slot.Status = models.PaneSlotStatusOK
		out = slot
		return nil
	})
	return out, err
}

// deviceFree проверяет, что устройство ещё нигде не сидит: повторная
// привязка всегда конфликт, никогда молчаливый relink.
func (a *Allocator) deviceFree(ctx context.Context, tx *gorm.DB, label string) (*models.Device, error) {
	dev, err := repo.NewDeviceStore(tx).GetByLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	held, err := repo.NewPaneStore(tx).SlotOfDevice(ctx, dev.ID)
	if err != nil {
		return nil, err
	}
	if held != nil {
		return nil, apperr.Conflict("device %q already linked to pane slot %d", label, held.ID)
	}
	return dev, nil
}

// Unlink освобождает слот устройства; отсутствие слота — ошибка.
func (a *Allocator) Unlink(ctx context.Context, deviceLabel string) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		dev, err := repo.NewDeviceStore(tx).GetByLabel(ctx, deviceLabel)
		if err != nil {
			return err
		}
		panes := repo.NewPaneStore(tx)
		slot, err := panes.SlotOfDevice(ctx, dev.ID)
		if err != nil {
			return err
		}
		if slot == nil {
			return apperr.Validation("device %q is not linked to any pane slot", deviceLabel)
		}
		return panes.SetSlotDevice(ctx, slot.ID, nil)
	})
}

// Remove удаляет вид со слотами; отказ, пока хоть один слот держит
// устройство.
func (a *Allocator) Remove(ctx context.Context, viewID uint) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		panes := repo.NewPaneStore(tx)
		if _, err := panes.GetView(ctx, viewID); err != nil {
			return err
		}
		n, err := panes.OccupiedSlotCount(ctx, viewID)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Forbidden("pane view %d still has %d linked device(s)", viewID, n)
		}
		return panes.DeleteView(ctx, viewID)
	})
}
