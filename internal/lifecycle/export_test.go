package lifecycle

// InstantLayouts exposes instantLayouts for external tests.
var InstantLayouts = instantLayouts
