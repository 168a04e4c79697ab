package notify

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"phoneshop/internal/models"
	"phoneshop/internal/vn"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

const parseModeHTML = "HTML"

type Message struct {
	Text      string
	ParseMode string
}

// Chunks splits the text into pieces of at most limit characters, breaking
// on line ends where possible so HTML tags stay balanced.
func (m Message) Chunks(limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(m.Text) <= limit {
		return []string{m.Text}
	}

	var chunks []string
	var current strings.Builder
	size := 0
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(m.Text, "\n") {
		n := utf8.RuneCountInString(line)
		if size+n > limit {
			flush()
		}
		for n > limit {
			// a single line longer than the limit is cut by runes
			cut := markupSafe(runePrefix(line, limit))
			chunks = append(chunks, cut)
			line = line[len(cut):]
			n = utf8.RuneCountInString(line)
		}
		current.WriteString(line)
		size += n
	}
	flush()
	return chunks
}

// markupSafe backs a cut off to before a tag or entity it would split. A cut
// that is all one open tag is returned unchanged.
func markupSafe(cut string) string {
	end := len(cut)
	if lt := strings.LastIndexByte(cut, '<'); lt > strings.LastIndexByte(cut, '>') {
		end = lt
	}
	if amp := strings.LastIndexByte(cut, '&'); amp > strings.LastIndexByte(cut, ';') && amp < end {
		end = amp
	}
	if end == 0 {
		return cut
	}
	return cut[:end]
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Formatter renders events as Telegram HTML.
type Formatter struct {
	shopName string
	loc      *time.Location
}

func NewFormatter(shopName string, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{shopName: shopName, loc: loc}
}

func (f *Formatter) Format(event *models.Event) (Message, error) {
	var b strings.Builder
	if f.shopName != "" {
		fmt.Fprintf(&b, "🏪 <b>%s</b>\n", esc(f.shopName))
	}

	var err error
	switch event.Type {
	case models.EventOrderCreated:
		err = f.order(&b, event)
	case models.EventWarrantyIssued:
		err = f.warrantyIssued(&b, event)
	case models.EventWarrantyCancelled:
		err = f.warrantyCancelled(&b, event)
	case models.EventInventoryTransitioned:
		err = f.transition(&b, event)
	case models.EventDeviceReceived:
		err = f.received(&b, event)
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Type)
	}
	if err != nil {
		return Message{}, err
	}

	return Message{Text: strings.TrimRight(b.String(), "\n"), ParseMode: parseModeHTML}, nil
}

func (f *Formatter) order(b *strings.Builder, event *models.Event) error {
	o := event.Order
	if o == nil {
		return fmt.Errorf("%s event %s has no order", event.Type, event.ID)
	}

	fmt.Fprintf(b, "🧾 <b>Đơn hàng mới</b> <code>%s</code>\n", esc(o.ID))
	fmt.Fprintf(b, "🕒 %s\n", vn.FormatTimestamp(o.CreatedAt.In(f.loc)))
	if o.CustomerName != "" || o.CustomerPhone != "" {
		fmt.Fprintf(b, "👤 %s", esc(o.CustomerName))
		if o.CustomerPhone != "" {
			fmt.Fprintf(b, " (%s)", esc(o.CustomerPhone))
		}
		b.WriteString("\n")
	}
	if o.Staff != "" {
		fmt.Fprintf(b, "🙋 NV: %s\n", esc(o.Staff))
	}

	b.WriteString("\n")
	for _, line := range o.Lines {
		switch line.Kind {
		case models.LineDevice:
			fmt.Fprintf(b, "📱 %s\n    IMEI <code>%s</code>: %s\n", esc(line.Product), esc(line.IMEI), vn.FormatVND(line.Price))
		case models.LineAccessory:
			fmt.Fprintf(b, "🎧 %s x%d: %s\n", esc(line.Product), line.Quantity, vn.FormatVND(line.Price))
		case models.LineWarranty:
			fmt.Fprintf(b, "🛡 %s: %s\n", esc(line.Product), vn.FormatVND(line.Price))
		case models.LineDiscount:
			fmt.Fprintf(b, "🏷 %s: %s\n", esc(line.Product), vn.FormatVND(line.Price))
		}
	}

	b.WriteString("\n")
	if !o.Discount.IsZero() {
		fmt.Fprintf(b, "Tạm tính: %s\n", vn.FormatVND(o.Subtotal))
		fmt.Fprintf(b, "Giảm giá: %s\n", vn.FormatVND(o.Discount))
	}
	fmt.Fprintf(b, "💰 <b>Tổng cộng: %s</b>\n", vn.FormatVND(o.Total))
	fmt.Fprintf(b, "📈 Lãi: %s\n", vn.FormatVND(o.Margin))
	if o.Note != "" {
		fmt.Fprintf(b, "📝 %s\n", esc(o.Note))
	}
	return nil
}

func (f *Formatter) warrantyIssued(b *strings.Builder, event *models.Event) error {
	if len(event.Contracts) == 0 {
		return fmt.Errorf("%s event %s has no contracts", event.Type, event.ID)
	}

	b.WriteString("🛡 <b>Kích hoạt bảo hành</b>\n")
	for _, c := range event.Contracts {
		fmt.Fprintf(b, "\n<code>%s</code> gói <b>%s</b>\n", esc(c.ID), esc(c.PackageCode))
		fmt.Fprintf(b, "📱 %s (<code>%s</code>)\n", esc(c.DeviceName), esc(c.IMEI))
		if c.CustomerName != "" || c.CustomerPhone != "" {
			fmt.Fprintf(b, "👤 %s %s\n", esc(c.CustomerName), esc(c.CustomerPhone))
		}
		f.coverageLine(b, "1 đổi 1", c.Coverage.ExchangeUntil)
		f.coverageLine(b, "Phần cứng", c.Coverage.HardwareUntil)
		f.coverageLine(b, "CNC", c.Coverage.CNCUntil)
	}
	return nil
}

func (f *Formatter) coverageLine(b *strings.Builder, label string, until time.Time) {
	if until.IsZero() {
		return
	}
	fmt.Fprintf(b, "   %s đến %s\n", label, vn.FormatDate(until.In(f.loc)))
}

func (f *Formatter) warrantyCancelled(b *strings.Builder, event *models.Event) error {
	if len(event.Contracts) == 0 {
		return fmt.Errorf("%s event %s has no contracts", event.Type, event.ID)
	}

	b.WriteString("❌ <b>Hủy bảo hành</b>\n")
	for _, c := range event.Contracts {
		fmt.Fprintf(b, "<code>%s</code> %s (<code>%s</code>)\n", esc(c.ID), esc(c.DeviceName), esc(c.IMEI))
	}
	if event.Reason != "" {
		fmt.Fprintf(b, "Lý do: %s\n", esc(event.Reason))
	}
	return nil
}

func (f *Formatter) transition(b *strings.Builder, event *models.Event) error {
	t := event.Transition
	if t == nil {
		return fmt.Errorf("%s event %s has no transition", event.Type, event.ID)
	}

	b.WriteString("🔄 <b>Chuyển trạng thái</b>\n")
	if d := event.Device; d != nil {
		fmt.Fprintf(b, "📱 %s\n", esc(d.DisplayName()))
	}
	fmt.Fprintf(b, "IMEI <code>%s</code>\n", esc(t.IMEI))
	fmt.Fprintf(b, "%s ➜ <b>%s</b>\n", esc(t.From.Label()), esc(t.To.Label()))
	if t.Note != "" {
		fmt.Fprintf(b, "📝 %s\n", esc(t.Note))
	}
	return nil
}

func (f *Formatter) received(b *strings.Builder, event *models.Event) error {
	d := event.Device
	if d == nil {
		return fmt.Errorf("%s event %s has no device", event.Type, event.ID)
	}

	b.WriteString("📦 <b>Nhập máy</b>\n")
	fmt.Fprintf(b, "📱 %s\n", esc(d.DisplayName()))
	fmt.Fprintf(b, "IMEI <code>%s</code>\n", esc(d.IMEI))
	fmt.Fprintf(b, "Giá nhập: %s\n", vn.FormatVND(d.Cost))
	if !d.Price.IsZero() {
		fmt.Fprintf(b, "Giá bán: %s\n", vn.FormatVND(d.Price))
	}
	return nil
}

func esc(s string) string {
	return html.EscapeString(s)
}
