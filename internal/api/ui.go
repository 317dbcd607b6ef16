package api

import (
	"net/http"
)

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FlowDeck - Flow Diagram</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: monospace;
            background: #1a1a2e;
            color: #eee;
            height: 100vh;
            display: flex;
            flex-direction: column;
        }
        header {
            background: #16213e;
            padding: 12px 20px;
            border-bottom: 1px solid #0f3460;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }
        header h1 { font-size: 16px; font-weight: normal; }
        #status {
            padding: 4px 10px;
            border-radius: 4px;
            font-size: 12px;
        }
        #status.connected { background: #1b4332; color: #95d5b2; }
        #status.disconnected { background: #7f1d1d; color: #fca5a5; }
        #status.connecting { background: #78350f; color: #fcd34d; }
        main { flex: 1; display: flex; overflow: hidden; }
        #diagram { flex: 2; background: #12122a; }
        #diagram svg { width: 100%; height: 100%; }
        #sidebar {
            flex: 1;
            min-width: 280px;
            max-width: 420px;
            border-left: 1px solid #0f3460;
            display: flex;
            flex-direction: column;
        }
        #events {
            flex: 1;
            overflow-y: auto;
            padding: 10px;
        }
        .event {
            padding: 6px 10px;
            margin-bottom: 4px;
            background: #16213e;
            border-radius: 4px;
            border-left: 3px solid #0f3460;
            font-size: 12px;
            display: flex;
            gap: 10px;
            align-items: baseline;
        }
        .event.level-error { border-left-color: #dc2626; background: #1f1515; }
        .event.scope-run { border-left-color: #7c3aed; }
        .event.scope-canvas { border-left-color: #059669; }
        .event.scope-watchdog { border-left-color: #d97706; }
        .event.scope-chat { border-left-color: #db2777; }
        .event.scope-farm { border-left-color: #0891b2; }
        .ts { color: #6b7280; font-size: 10px; min-width: 70px; }
        .name { color: #60a5fa; min-width: 140px; }
        .controls {
            padding: 10px;
            border-top: 1px solid #0f3460;
            display: flex;
            gap: 8px;
        }
        .controls input {
            flex: 1;
            background: #1a1a2e;
            border: 1px solid #0f3460;
            color: #eee;
            padding: 6px 8px;
            border-radius: 4px;
            font-family: monospace;
        }
        .controls button, .controls select {
            background: #0f3460;
            border: none;
            color: #eee;
            padding: 6px 12px;
            border-radius: 4px;
            cursor: pointer;
            font-family: monospace;
        }
        .controls button:hover { background: #16498c; }
        .edge {
            stroke: #3a4a6b;
            stroke-width: 2;
            fill: none;
            transition: stroke 0.15s;
        }
        .edge.active { stroke: #facc15; stroke-width: 3.5; }
        .edge-label {
            fill: #6b7280;
            font-size: 11px;
            font-family: monospace;
            text-anchor: middle;
        }
        .node rect {
            fill: #16213e;
            stroke: #0f3460;
            stroke-width: 2;
            rx: 8;
            transition: stroke 0.15s;
        }
        .node.active rect { stroke: #facc15; stroke-width: 3.5; fill: #1f2a4a; }
        .node.kind-supervisor rect { stroke: #7c3aed; }
        .node.kind-supervisor.active rect { stroke: #facc15; }
        .node text {
            fill: #cbd5e1;
            font-size: 13px;
            font-family: monospace;
            text-anchor: middle;
            dominant-baseline: middle;
        }
    </style>
</head>
<body>
    <header>
        <h1>FlowDeck</h1>
        <span id="pattern"></span>
        <span id="status" class="connecting">connecting</span>
    </header>
    <main>
        <div id="diagram"><svg viewBox="0 0 800 600" id="svg"></svg></div>
        <div id="sidebar">
            <div id="events"></div>
            <div class="controls">
                <select id="patternSel">
                    <option value="pubsub">pubsub</option>
                    <option value="group">group</option>
                </select>
                <button onclick="setPattern()">apply</button>
            </div>
            <div class="controls">
                <input id="prompt" placeholder="ask about yield..." onkeydown="if(event.key==='Enter')sendChat()">
                <button onclick="sendChat()">send</button>
            </div>
        </div>
    </main>
    <script>
        const W = 800, H = 600, NODE_W = 170, NODE_H = 48;
        let graph = { nodes: [], edges: [] };
        let ws = null;

        function px(p) { return { x: p.x * W, y: p.y * H }; }

        function nodeCenter(id) {
            const n = graph.nodes.find(n => n.id === id);
            return n ? px(n.position) : { x: W / 2, y: H / 2 };
        }

        function draw() {
            const svg = document.getElementById('svg');
            let out = '';
            for (const e of graph.edges) {
                const s = nodeCenter(e.source), t = nodeCenter(e.target);
                // Offset paired request/response edges so they do not overlap.
                const dx = t.x - s.x, dy = t.y - s.y;
                const len = Math.hypot(dx, dy) || 1;
                const ox = -dy / len * 10, oy = dx / len * 10;
                const cls = 'edge' + (e.active ? ' active' : '');
                out += '<path class="' + cls + '" data-edge="' + e.id + '" d="M' +
                    (s.x + ox) + ',' + (s.y + oy) + ' L' + (t.x + ox) + ',' + (t.y + oy) + '"/>';
                if (e.label) {
                    out += '<text class="edge-label" x="' + ((s.x + t.x) / 2 + ox * 2.2) +
                        '" y="' + ((s.y + t.y) / 2 + oy * 2.2) + '">' + e.label + '</text>';
                }
            }
            for (const n of graph.nodes) {
                const p = px(n.position);
                const cls = 'node kind-' + n.kind + (n.active ? ' active' : '');
                out += '<g class="' + cls + '" data-node="' + n.id + '">' +
                    '<rect x="' + (p.x - NODE_W / 2) + '" y="' + (p.y - NODE_H / 2) +
                    '" width="' + NODE_W + '" height="' + NODE_H + '" rx="8"/>' +
                    '<text x="' + p.x + '" y="' + p.y + '">' + n.label + '</text></g>';
            }
            svg.innerHTML = out;
            ackRendered();
        }

        // Tell the server how many edges actually made it into the DOM.
        function ackRendered() {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            const drawn = document.querySelectorAll('#svg .edge').length;
            ws.send(JSON.stringify({ type: 'rendered', edges: drawn }));
        }

        function setHighlight(ids, active) {
            for (const id of ids) {
                const el = document.querySelector('[data-node="' + id + '"]') ||
                           document.querySelector('[data-edge="' + id + '"]');
                if (el) el.classList.toggle('active', active);
                const n = graph.nodes.find(n => n.id === id);
                if (n) n.active = active;
                const e = graph.edges.find(e => e.id === id);
                if (e) e.active = active;
            }
        }

        function logEvent(e) {
            const div = document.createElement('div');
            const scope = e.event.split('.')[0];
            div.className = 'event level-' + e.level + ' scope-' + scope;
            const ts = e.ts ? e.ts.substring(11, 19) : '';
            div.innerHTML = '<span class="ts">' + ts + '</span><span class="name">' +
                e.event + '</span>';
            const box = document.getElementById('events');
            box.appendChild(div);
            box.scrollTop = box.scrollHeight;
            while (box.children.length > 200) box.removeChild(box.firstChild);
        }

        function handleEvent(e) {
            logEvent(e);
            const f = e.fields || {};
            switch (e.event) {
                case 'canvas.nodes.installed':
                    graph.nodes = f.nodes || [];
                    draw();
                    break;
                case 'canvas.edges.installed':
                    graph.edges = f.edges || [];
                    draw();
                    break;
                case 'canvas.edges.cleared':
                    graph.edges = [];
                    draw();
                    break;
                case 'canvas.labels.updated':
                    for (const l of (f.labels || [])) {
                        const edge = graph.edges.find(x => x.id === l.id);
                        if (edge) edge.label = l.label;
                    }
                    draw();
                    break;
                case 'canvas.highlight':
                    setHighlight(f.ids || [], !!f.active);
                    break;
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(proto + '//' + location.host + '/ws');
            const status = document.getElementById('status');
            status.className = 'connecting'; status.textContent = 'connecting';

            ws.onopen = () => {
                status.className = 'connected'; status.textContent = 'connected';
            };
            ws.onclose = () => {
                status.className = 'disconnected'; status.textContent = 'disconnected';
                setTimeout(connect, 2000);
            };
            ws.onmessage = (msg) => {
                const data = JSON.parse(msg.data);
                if (data.type === 'snapshot') {
                    graph = data.graph || { nodes: [], edges: [] };
                    graph.nodes = graph.nodes || [];
                    graph.edges = graph.edges || [];
                    document.getElementById('pattern').textContent =
                        data.pattern + (data.connected ? ' (connected)' : '');
                    document.getElementById('patternSel').value = data.pattern;
                    draw();
                    for (const e of (data.recent || [])) logEvent(e);
                } else {
                    handleEvent(data);
                }
            };
        }

        async function setPattern() {
            const pattern = document.getElementById('patternSel').value;
            await fetch('/pattern', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ pattern })
            });
            document.getElementById('pattern').textContent = pattern;
        }

        async function sendChat() {
            const input = document.getElementById('prompt');
            const prompt = input.value.trim();
            if (!prompt) return;
            input.value = '';
            await fetch('/chat', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ prompt })
            });
        }

        connect();
    </script>
</body>
</html>`

// viewerHandler serves the embedded diagram viewer page.
func viewerHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(viewerHTML))
}
