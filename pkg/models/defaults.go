package models

// DefaultRateLimitMPS is the advisory messages-per-second value new stores start with.
const DefaultRateLimitMPS = 60

// Placeholders are the tokens a template body may reference.
var Placeholders = []string{"{name}", "{order_no}", "{order_url}", "{tracking_no}"}

var defaultTemplates = []Template{
	{Key: EventOrderCreated, DisplayName: "تم إنشاء الطلب", Body: "يا {name} 🎉 تم استلام طلبك #{order_no}. رابط الطلب: {order_url}"},
	{Key: EventOrderPaid, DisplayName: "تم الدفع", Body: "يا {name} ✨ تم تأكيد دفع طلبك #{order_no} ✅ سنطلعك على حالة الشحن أولاً بأول."},
	{Key: EventOrderFulfilled, DisplayName: "تم الشحن", Body: "يا {name} 📦 تم شحن طلبك #{order_no}. رقم التتبع: {tracking_no}"},
	{Key: EventOutForDelivery, DisplayName: "خارج للتسليم", Body: "يا {name} 🚚 طلبك #{order_no} في الطريق إليك."},
	{Key: EventDelivered, DisplayName: "تم التسليم", Body: "يا {name} ✅ تم تسليم طلبك #{order_no}. نتمنى لك تجربة ممتعة."},
	{Key: EventOrderCanceled, DisplayName: "تم الإلغاء", Body: "يؤسفنا إبلاغك بإلغاء طلبك #{order_no}. لأي استفسار نحن هنا دائمًا."},
	{Key: EventRefundCreated, DisplayName: "استرجاع", Body: "تم فتح طلب استرجاع للطلب #{order_no}. سيتواصل فريقنا معك بالتفاصيل."},
}

// DefaultSettings returns a fresh copy of the settings every store starts with:
// all event kinds enabled and the default advisory rate limit.
func DefaultSettings() Settings {
	enabled := make(map[EventKind]bool, len(EventKinds))
	for _, k := range EventKinds {
		enabled[k] = true
	}
	return Settings{Enabled: enabled, RateLimitMPS: DefaultRateLimitMPS}
}

// DefaultTemplates returns a copy of the system templates in dashboard order.
func DefaultTemplates() []Template {
	out := make([]Template, len(defaultTemplates))
	copy(out, defaultTemplates)
	return out
}
