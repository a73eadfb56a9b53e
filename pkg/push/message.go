// Package push contains the public message model for the FCM HTTP v1 API.
//
// A Message is built once by the caller and must not change while a send
// operation is running. The engine never mutates a caller's Message; it
// works on per-recipient copies produced by WithToken.
package push

// Message is one logical notification in FCM v1 wire shape.
type Message struct {
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`

	// Exactly one of Token, Topic or Condition may be set. For multicast
	// sends the engine fills Token per recipient; Topic and Condition are
	// provided for callers using the message model directly.
	Token     string `json:"token,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Notification is the basic cross-platform notification template.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

// AndroidConfig carries Android-specific delivery hints.
type AndroidConfig struct {
	CollapseKey           string               `json:"collapse_key,omitempty"`
	Priority              string               `json:"priority,omitempty"`
	TTL                   string               `json:"ttl,omitempty"`
	RestrictedPackageName string               `json:"restricted_package_name,omitempty"`
	Data                  map[string]string    `json:"data,omitempty"`
	Notification          *AndroidNotification `json:"notification,omitempty"`
}

// AndroidNotification overrides the basic template on Android devices.
type AndroidNotification struct {
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	Color        string   `json:"color,omitempty"`
	Sound        string   `json:"sound,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	ClickAction  string   `json:"click_action,omitempty"`
	ChannelID    string   `json:"channel_id,omitempty"`
	BodyLocKey   string   `json:"body_loc_key,omitempty"`
	BodyLocArgs  []string `json:"body_loc_args,omitempty"`
	TitleLocKey  string   `json:"title_loc_key,omitempty"`
	TitleLocArgs []string `json:"title_loc_args,omitempty"`
}

// WebpushConfig carries Web Push protocol options.
type WebpushConfig struct {
	Headers      map[string]string `json:"headers,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification map[string]any    `json:"notification,omitempty"`
}

// APNSConfig carries Apple Push Notification Service options.
type APNSConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload map[string]any    `json:"payload,omitempty"`
}

// Clone returns a deep copy of the message. Copies share no mutable state
// with the original or with each other, so one request mutating its copy
// cannot leak into a sibling request.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Data = cloneStringMap(m.Data)
	if m.Notification != nil {
		n := *m.Notification
		c.Notification = &n
	}
	c.Android = m.Android.clone()
	c.Webpush = m.Webpush.clone()
	c.APNS = m.APNS.clone()
	return &c
}

// WithToken returns a deep copy of the message addressed to one recipient.
func (m *Message) WithToken(token string) *Message {
	c := m.Clone()
	c.Token = token
	return c
}

func (a *AndroidConfig) clone() *AndroidConfig {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = cloneStringMap(a.Data)
	if a.Notification != nil {
		n := *a.Notification
		n.BodyLocArgs = append([]string(nil), a.Notification.BodyLocArgs...)
		n.TitleLocArgs = append([]string(nil), a.Notification.TitleLocArgs...)
		c.Notification = &n
	}
	return &c
}

func (w *WebpushConfig) clone() *WebpushConfig {
	if w == nil {
		return nil
	}
	c := *w
	c.Headers = cloneStringMap(w.Headers)
	c.Data = cloneStringMap(w.Data)
	c.Notification = cloneAnyMap(w.Notification)
	return &c
}

func (a *APNSConfig) clone() *APNSConfig {
	if a == nil {
		return nil
	}
	c := *a
	c.Headers = cloneStringMap(a.Headers)
	c.Payload = cloneAnyMap(a.Payload)
	return &c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneValue(v)
	}
	return c
}

// cloneValue deep-copies the JSON-shaped values that appear in payload maps.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	default:
		return v
	}
}
