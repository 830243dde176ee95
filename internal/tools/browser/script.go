package browser

// stealthScript runs on every new document before page scripts to hide
// the usual automation fingerprints.
const stealthScript = `
// Webdriver property
Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined
});

// Languages
Object.defineProperty(navigator, 'languages', {
	get: () => ['en-US']
});

// Plugins
Object.defineProperty(navigator, 'plugins', {
	get: () => [1, 2, 3, 4, 5]
});

// Chrome runtime
window.chrome = { runtime: {} };

// Permissions
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications' ?
		Promise.resolve({ state: Notification.permission }) :
		originalQuery(parameters)
);

// Shadow DOM
(function () {
	const originalAttachShadow = Element.prototype.attachShadow;
	Element.prototype.attachShadow = function attachShadow(options) {
		return originalAttachShadow.call(this, { ...options, mode: "open" });
	};
})();
`

// detectElementsScript finds the visible interactive elements, tags each
// with a stable data-browser-agent-id, and returns them together with the
// viewport geometry. Coordinates are viewport-relative.
const detectElementsScript = `
() => {
	const INTERACTIVE_TAGS = new Set(['a', 'button', 'input', 'select', 'textarea', 'summary', 'option', 'label']);
	const WEIGHTS = { button: 10, a: 10, input: 10, select: 10, textarea: 10, label: 3 };

	function isVisible(el, rect) {
		if (rect.width <= 0 || rect.height <= 0) return false;
		if (rect.bottom < 0 || rect.right < 0) return false;
		if (rect.top > window.innerHeight || rect.left > window.innerWidth) return false;
		const style = window.getComputedStyle(el);
		return style.visibility !== 'hidden' && style.display !== 'none' && parseFloat(style.opacity || '1') > 0;
	}

	function isInteractive(el) {
		const tag = el.tagName.toLowerCase();
		if (INTERACTIVE_TAGS.has(tag)) return true;
		if (el.hasAttribute('onclick') || el.hasAttribute('contenteditable')) return true;
		const role = el.getAttribute('role');
		if (role && ['button', 'link', 'checkbox', 'radio', 'tab', 'menuitem', 'option', 'combobox', 'textbox', 'switch'].includes(role)) return true;
		const style = window.getComputedStyle(el);
		return style.cursor === 'pointer' && el.childElementCount === 0;
	}

	let counter = 0;
	const elements = [];
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_ELEMENT);
	while (walker.nextNode()) {
		const el = walker.currentNode;
		if (!isInteractive(el)) continue;
		const rect = el.getBoundingClientRect();
		if (!isVisible(el, rect)) continue;

		let agentId = el.getAttribute('data-browser-agent-id');
		if (!agentId) {
			agentId = 'agent-' + (counter++) + '-' + Math.random().toString(36).slice(2, 10);
			el.setAttribute('data-browser-agent-id', agentId);
		}

		const attributes = {};
		for (const attr of el.attributes) {
			if (attr.name !== 'style' && attr.value.length < 256) attributes[attr.name] = attr.value;
		}

		const tag = el.tagName.toLowerCase();
		const style = window.getComputedStyle(el);
		elements.push({
			index: elements.length,
			tag_name: tag,
			text: (el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder') || '').trim().slice(0, 200),
			attributes: attributes,
			weight: WEIGHTS[tag] || 5,
			browser_agent_id: agentId,
			input_type: tag === 'input' ? (el.getAttribute('type') || 'text') : '',
			z_index: parseInt(style.zIndex, 10) || 0,
			viewport: { x: rect.left, y: rect.top, width: rect.width, height: rect.height },
			page: { x: rect.left + window.scrollX, y: rect.top + window.scrollY, width: rect.width, height: rect.height },
			center: { x: rect.left + rect.width / 2, y: rect.top + rect.height / 2 },
			rect: {
				left: rect.left, top: rect.top, right: rect.right, bottom: rect.bottom,
				width: rect.width, height: rect.height
			}
		});
	}

	const doc = document.documentElement;
	const scrollY = Math.round(window.scrollY);
	const viewport = {
		width: window.innerWidth,
		height: window.innerHeight,
		scroll_x: Math.round(window.scrollX),
		scroll_y: scrollY,
		device_pixel_ratio: window.devicePixelRatio || 1,
		scroll_distance_above_viewport: scrollY,
		scroll_distance_below_viewport: Math.max(0, doc.scrollHeight - scrollY - window.innerHeight)
	};

	return { elements: elements, viewport: viewport };
}
`
