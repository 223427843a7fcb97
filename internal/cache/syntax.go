package cache

var syntaxCache = NewCache[string, string]()

// GetSyntaxCSS returns the stylesheet generated for a highlighting theme.
func GetSyntaxCSS(theme string) (string, bool) {
	return syntaxCache.Get(theme)
}

func SetSyntaxCSS(theme string, css string) {
	syntaxCache.Set(theme, css)
}
