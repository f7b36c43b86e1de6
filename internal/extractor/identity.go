package extractor

// ClientIdentity describes one client-context payload tried by the
// strategy chain. Mobile/desktop/headset identities return formats whose
// URL is already usable; the web identity's formats are cipher-scrambled
// and require deobfuscation.
type ClientIdentity struct {
	Name               string
	ClientName         string
	ClientVersion      string
	RequiresDeobfuscation bool
}

// Strategy chain order: direct-URL identities first (cheapest, no
// JS evaluation), the web identity (deobfuscation) last among the
// built-ins, proxies are attempted only after every identity fails.
var strategyChain = []ClientIdentity{
	{Name: "mobile", ClientName: "ANDROID", ClientVersion: "19.09.37"},
	{Name: "desktop", ClientName: "WEB", ClientVersion: "2.20240101.00.00"},
	{Name: "headset", ClientName: "ANDROID_VR", ClientVersion: "1.57.29"},
	{Name: "web", ClientName: "WEB_REMIX", ClientVersion: "1.20240101.01.00", RequiresDeobfuscation: true},
}
