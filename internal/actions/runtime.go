package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"tablecrm/internal/model"
	"tablecrm/internal/repository"
)

// TelegramSender is the outbound notification transport. Delivery is owned
// by the bot infrastructure; the runtime only hands messages over.
type TelegramSender interface {
	SendSegmentNotification(ctx context.Context, chatIDs []int64, text string, segmentID int64) error
}

type Repo interface {
	repository.ActionRepo
	repository.CollectorRepo
}

// Runtime dispatches the side-effect actions configured on a segment after
// a successful diff. Actions are best-effort and independent: a failure is
// logged and the rest keep running.
type Runtime struct {
	repo Repo
	tg   TelegramSender
	log  *slog.Logger
}

func NewRuntime(repo Repo, tg TelegramSender, log *slog.Logger) *Runtime {
	return &Runtime{repo: repo, tg: tg, log: log}
}

type actionHandler func(rt *Runtime, ctx context.Context, seg *model.Segment, ids []int64, change model.ChangeType, raw json.RawMessage) error

// The dispatch table. Order is fixed: tag mutations first, notifications
// last, added sets before removed ones.
var dispatch = []struct {
	key    string
	field  model.SelectionField // empty means both domains
	change model.ChangeType
	run    actionHandler
}{
	{"add_tags", model.SelectionContragents, model.ChangeAdded, (*Runtime).addTags},
	{"remove_tags", model.SelectionContragents, model.ChangeRemoved, (*Runtime).removeTags},
	{"add_docs_sales_tags", model.SelectionDocsSales, model.ChangeAdded, (*Runtime).addDocsSalesTags},
	{"remove_docs_sales_tags", model.SelectionDocsSales, model.ChangeRemoved, (*Runtime).removeDocsSalesTags},
	{"send_tg_notification", "", "", (*Runtime).sendTgNotification},
}

// Run executes every configured action against the change sets of one
// evaluation.
func (rt *Runtime) Run(ctx context.Context, seg *model.Segment, added, removed []int64) {
	if len(seg.Actions) == 0 {
		return
	}
	var configured map[string]json.RawMessage
	if err := json.Unmarshal(seg.Actions, &configured); err != nil {
		rt.log.Error("segment actions are not a JSON object",
			"segment_id", seg.ID, "error", err)
		return
	}
	for _, entry := range dispatch {
		raw, ok := configured[entry.key]
		if !ok {
			continue
		}
		if entry.field != "" && entry.field != seg.SelectionField {
			continue
		}
		change := entry.change
		if change == "" {
			change = notificationTrigger(raw)
		}
		ids := added
		if change == model.ChangeRemoved {
			ids = removed
		}
		if len(ids) == 0 {
			continue
		}
		if err := entry.run(rt, ctx, seg, ids, change, raw); err != nil {
			rt.log.Error("segment action failed",
				"segment_id", seg.ID, "action", entry.key, "error", err)
		}
	}
}

// notificationTrigger reads trigger_on_new, which defaults to true.
func notificationTrigger(raw json.RawMessage) model.ChangeType {
	var p struct {
		TriggerOnNew *bool `json:"trigger_on_new"`
	}
	if err := json.Unmarshal(raw, &p); err == nil && p.TriggerOnNew != nil && !*p.TriggerOnNew {
		return model.ChangeRemoved
	}
	return model.ChangeAdded
}

func (rt *Runtime) addTags(ctx context.Context, seg *model.Segment, ids []int64, _ model.ChangeType, raw json.RawMessage) error {
	var p model.AddRemoveTags
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("bad add_tags payload: %w", err)
	}
	if err := model.ValidateTagNames(p.Name); err != nil {
		return err
	}
	return rt.repo.AttachContragentTags(ctx, seg.CashboxID, ids, p.Name)
}

func (rt *Runtime) removeTags(ctx context.Context, seg *model.Segment, ids []int64, _ model.ChangeType, raw json.RawMessage) error {
	var p model.AddRemoveTags
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("bad remove_tags payload: %w", err)
	}
	if err := model.ValidateTagNames(p.Name); err != nil {
		return err
	}
	return rt.repo.DetachContragentTags(ctx, seg.CashboxID, ids, p.Name)
}

func (rt *Runtime) addDocsSalesTags(ctx context.Context, _ *model.Segment, ids []int64, _ model.ChangeType, raw json.RawMessage) error {
	var p model.DocsSalesTags
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("bad add_docs_sales_tags payload: %w", err)
	}
	if err := model.ValidateTagNames(p.Tags); err != nil {
		return err
	}
	return rt.repo.AttachDocsSalesTags(ctx, ids, p.Tags)
}

func (rt *Runtime) removeDocsSalesTags(ctx context.Context, _ *model.Segment, ids []int64, _ model.ChangeType, raw json.RawMessage) error {
	var p model.DocsSalesTags
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("bad remove_docs_sales_tags payload: %w", err)
	}
	if err := model.ValidateTagNames(p.Tags); err != nil {
		return err
	}
	return rt.repo.DetachDocsSalesTags(ctx, ids, p.Tags)
}

func (rt *Runtime) sendTgNotification(ctx context.Context, seg *model.Segment, ids []int64, change model.ChangeType, raw json.RawMessage) error {
	var p model.TgNotificationAction
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("bad send_tg_notification payload: %w", err)
	}
	if seg.SelectionField == model.SelectionContragents {
		return rt.notifyContragents(ctx, seg, ids, &p, change)
	}
	return rt.notifyDocsSales(ctx, seg, ids, &p)
}

func (rt *Runtime) notifyContragents(ctx context.Context, seg *model.Segment, ids []int64, p *model.TgNotificationAction, change model.ChangeType) error {
	if p.UserTag == "" {
		return nil
	}
	chatIDs, err := rt.repo.UserChatIDsByTag(ctx, seg.CashboxID, p.UserTag)
	if err != nil {
		return err
	}
	if len(chatIDs) == 0 {
		return nil
	}
	rows, err := rt.repo.ContragentsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, row := range rows {
		var name, phone string
		if row.Name != nil {
			name = *row.Name
		}
		if row.Phone != nil {
			if normalized := model.NormalizePhone(*row.Phone); normalized != nil {
				phone = *normalized
			}
		}
		text := p.Message
		if text == "" {
			text = defaultContragentText(change, seg.Name, name, phone)
		} else {
			text = ReplaceMasks(text, map[string]string{
				"name":    name,
				"phone":   phone,
				"segment": seg.Name,
			})
		}
		if err := rt.tg.SendSegmentNotification(ctx, chatIDs, text, seg.ID); err != nil {
			rt.log.Error("segment action failed",
				"segment_id", seg.ID, "action", "send_tg_notification",
				"object_id", row.ID, "error", err)
		}
	}
	return nil
}

func defaultContragentText(change model.ChangeType, segmentName, name, phone string) string {
	header := "Новый пользователь добавлен в сегмент!"
	if change == model.ChangeRemoved {
		header = "Пользователь исключен из сегмента!"
	}
	return fmt.Sprintf("%s\nСегмент: %s.\nКлиент:\n%s\nТелефон: %s",
		header, segmentName, name, phone)
}

func (rt *Runtime) notifyDocsSales(ctx context.Context, seg *model.Segment, ids []int64, p *model.TgNotificationAction) error {
	if p.Message == "" {
		return nil
	}
	sendToRole := p.SendTo == "picker" || p.SendTo == "courier"
	var baseChats []int64
	if !sendToRole {
		if p.UserTag == "" {
			return nil
		}
		var err error
		baseChats, err = rt.repo.UserChatIDsByTag(ctx, seg.CashboxID, p.UserTag)
		if err != nil {
			return err
		}
	}
	for _, orderID := range ids {
		text := fmt.Sprintf("Заказ # - %d\n\n%s", orderID, p.Message)
		replacements, err := rt.orderReplacements(ctx, seg, orderID)
		if err != nil {
			rt.log.Error("segment action failed",
				"segment_id", seg.ID, "action", "send_tg_notification",
				"object_id", orderID, "error", err)
			continue
		}
		text = ReplaceMasks(text, replacements)

		chats := baseChats
		switch p.SendTo {
		case "picker":
			chats, err = rt.repo.PickerChatIDs(ctx, seg.CashboxID, orderID)
		case "courier":
			chats, err = rt.repo.CourierChatIDs(ctx, seg.CashboxID, orderID)
		}
		if err != nil {
			rt.log.Error("segment action failed",
				"segment_id", seg.ID, "action", "send_tg_notification",
				"object_id", orderID, "error", err)
			continue
		}
		if len(chats) == 0 {
			continue
		}
		if err := rt.tg.SendSegmentNotification(ctx, chats, text, seg.ID); err != nil {
			rt.log.Error("segment action failed",
				"segment_id", seg.ID, "action", "send_tg_notification",
				"object_id", orderID, "error", err)
		}
	}
	return nil
}

// orderReplacements builds the mask context of one sale: delivery fields
// (empty strings when the sale has no delivery info) plus one link anchor
// per generated short-link channel.
func (rt *Runtime) orderReplacements(ctx context.Context, seg *model.Segment, orderID int64) (map[string]string, error) {
	replacements := map[string]string{
		"segment":            seg.Name,
		"delivery_address":   "",
		"delivery_note":      "",
		"delivery_date":      "",
		"delivery_recipient": "",
	}
	info, err := rt.repo.DeliveryInfo(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if info != nil {
		replacements["delivery_address"] = info.Address
		replacements["delivery_note"] = info.Note
		replacements["delivery_recipient"] = info.Recipient
		if info.Date != nil {
			replacements["delivery_date"] = info.Date.Format("02.01.2006 15:04")
		}
	}
	links, err := rt.repo.OrderLinks(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for channel, url := range links {
		replacements[channel] = fmt.Sprintf("\n\n<a href='%s'>Открыть заказ</a>", url)
	}
	return replacements, nil
}
