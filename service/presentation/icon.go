package presentation

const (
	DefaultSmallIcon = "ic_notification"
	GenericAppIcon   = "ic_launcher_foreground"
	BuiltinIcon      = "ic_dialog_info"
	LargeSuffix      = "_large"
)

// Resources looks up named drawables bundled with the host application.
type Resources interface {
	Drawable(name string) (id int, ok bool)
}

// StaticResources maps drawable names to resource ids.
type StaticResources map[string]int

func (r StaticResources) Drawable(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	id, ok := r[name]
	return id, ok && id != 0
}

type IconSource string

const (
	IconCustom  IconSource = "custom"
	IconDefault IconSource = "default"
	IconGeneric IconSource = "generic"
	IconBuiltin IconSource = "builtin"
)

type Icon struct {
	Name   string
	ID     int
	Source IconSource
}

// ResolveIcon walks custom -> default small icon -> generic app icon -> built-in.
// The built-in icon is always available, so resolution never fails.
func ResolveIcon(res Resources, custom string) Icon {
	return resolve(res, []candidate{
		{custom, IconCustom},
		{DefaultSmallIcon, IconDefault},
		{GenericAppIcon, IconGeneric},
	})
}

// ResolveLargeIcon applies the same chain to the "_large" variants.
func ResolveLargeIcon(res Resources, custom string) Icon {
	var customLarge string
	if custom != "" {
		customLarge = custom + LargeSuffix
	}
	return resolve(res, []candidate{
		{customLarge, IconCustom},
		{DefaultSmallIcon + LargeSuffix, IconDefault},
		{GenericAppIcon, IconGeneric},
	})
}

type candidate struct {
	name   string
	source IconSource
}

func resolve(res Resources, chain []candidate) Icon {
	if res != nil {
		for _, c := range chain {
			if c.name == "" {
				continue
			}
			if id, ok := res.Drawable(c.name); ok {
				return Icon{Name: c.name, ID: id, Source: c.source}
			}
		}
	}
	return Icon{Name: BuiltinIcon, Source: IconBuiltin}
}
