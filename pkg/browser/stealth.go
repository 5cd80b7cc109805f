package browser

// ChromiumArgs are passed to every Chromium launch. They remove the most
// obvious automation flags and keep the renderer lean in containers.
var ChromiumArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-features=IsolateOrigins,site-per-process",
	"--disable-site-isolation-trials",
	"--disable-web-security",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-accelerated-2d-canvas",
	"--no-first-run",
	"--no-zygote",
	"--disable-gpu",
	"--hide-scrollbars",
	"--mute-audio",
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-breakpad",
	"--disable-component-extensions-with-background-pages",
	"--disable-extensions",
	"--disable-features=TranslateUI",
	"--disable-ipc-flooding-protection",
	"--disable-renderer-backgrounding",
	"--enable-features=NetworkService,NetworkServiceInProcess",
	"--force-color-profile=srgb",
	"--metrics-recording-only",
}

// IgnoredDefaultArgs are driver defaults that are dropped at launch.
var IgnoredDefaultArgs = []string{"--enable-automation"}

// StealthScript masks the navigator and WebGL properties headless Chromium
// exposes differently from a desktop browser.
const StealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
window.chrome = { runtime: {}, loadTimes: function() {}, csi: function() {}, app: {} };
if (typeof WebGLRenderingContext !== 'undefined') {
  const getParameter = WebGLRenderingContext.prototype.getParameter;
  WebGLRenderingContext.prototype.getParameter = function(parameter) {
    if (parameter === 37445) { return 'Intel Inc.'; }
    if (parameter === 37446) { return 'Intel Iris OpenGL Engine'; }
    return getParameter.call(this, parameter);
  };
}
`
