package server

// HTMLPage is the test page. The scenario and browser come from the query
// string (?scenario=media&browser=firefox). When the scenario finishes the
// page stores its result object in window.testResult and logs it with the
// TEST_RESULT: prefix.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>WebRTC Interop Test</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-bottom: 10px; }
        #status { margin: 20px 0; padding: 15px; border-radius: 4px; font-weight: 500; }
        .status-running { background: #cce5ff; color: #004085; }
        .status-passed { background: #d4edda; color: #155724; }
        .status-failed { background: #f8d7da; color: #721c24; }
        #log { font-family: monospace; font-size: 12px; white-space: pre-wrap; color: #555; }
    </style>
</head>
<body>
    <div class="container">
        <h1>WebRTC Interop Test</h1>
        <div id="scenario"></div>
        <div id="status" class="status-running">Running...</div>
        <video id="video" autoplay muted playsinline width="320"></video>
        <div id="log"></div>
    </div>

    <script>
        const params = new URLSearchParams(location.search);
        const scenario = params.get('scenario') || 'datachannel';
        const browser = params.get('browser') || 'unknown';
        const MESSAGE_COUNT = 5;
        const OPEN_TIMEOUT_MS = 15000;
        const MEDIA_SETTLE_MS = 3000;
        const CLIENTS = 2;

        document.getElementById('scenario').textContent = 'Scenario: ' + scenario + ' / Browser: ' + browser;

        function log(msg) {
            console.log(msg);
            document.getElementById('log').textContent += msg + '\n';
        }

        function finish(result) {
            if (window.testResult) {
                return;
            }
            window.testResult = result;
            console.log('TEST_RESULT:' + JSON.stringify(result));
            const status = document.getElementById('status');
            status.textContent = result.success ? 'PASSED' : 'FAILED: ' + result.error;
            status.className = result.success ? 'status-passed' : 'status-failed';
        }

        function sleep(ms) {
            return new Promise(resolve => setTimeout(resolve, ms));
        }

        function withTimeout(promise, ms, what) {
            return Promise.race([
                promise,
                new Promise((_, reject) => setTimeout(() => reject(new Error(what + ' timed out')), ms)),
            ]);
        }

        async function post(path, body) {
            const resp = await fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body),
            });
            if (!resp.ok) {
                throw new Error(path + ' returned ' + resp.status);
            }
            return resp.json();
        }

        async function getJSON(path) {
            const resp = await fetch(path);
            if (!resp.ok) {
                throw new Error(path + ' returned ' + resp.status);
            }
            return resp.json();
        }

        function iceGatheringComplete(pc) {
            if (pc.iceGatheringState === 'complete') {
                return Promise.resolve();
            }
            return new Promise(resolve => {
                const check = () => {
                    if (pc.iceGatheringState === 'complete') {
                        pc.removeEventListener('icegatheringstatechange', check);
                        resolve();
                    }
                };
                pc.addEventListener('icegatheringstatechange', check);
                // Some engines never report complete on loopback-only hosts.
                setTimeout(resolve, 2000);
            });
        }

        function newPeerConnection(label) {
            const pc = new RTCPeerConnection();
            pc.onconnectionstatechange = () => log(label + ' connection state: ' + pc.connectionState);
            return pc;
        }

        function channelOpen(dc) {
            if (dc.readyState === 'open') {
                return Promise.resolve();
            }
            return withTimeout(new Promise(resolve => dc.addEventListener('open', resolve, { once: true })),
                OPEN_TIMEOUT_MS, 'data channel open');
        }

        // Sends MESSAGE_COUNT messages and counts the echoes.
        async function echoTest(dc) {
            let received = 0;
            const done = new Promise(resolve => {
                dc.onmessage = () => {
                    received++;
                    if (received === MESSAGE_COUNT) {
                        resolve();
                    }
                };
            });
            for (let i = 0; i < MESSAGE_COUNT; i++) {
                dc.send('ping-' + i);
            }
            try {
                await withTimeout(done, OPEN_TIMEOUT_MS, 'echo');
            } catch (e) {
                log(e.message);
            }
            return { messagesSent: MESSAGE_COUNT, messagesReceived: received };
        }

        async function connectClient(label) {
            const started = performance.now();
            const pc = newPeerConnection(label);
            const dc = pc.createDataChannel('interop');
            await pc.setLocalDescription(await pc.createOffer());
            await iceGatheringComplete(pc);
            const answer = await post('/offer', pc.localDescription);
            await pc.setRemoteDescription({ type: answer.type, sdp: answer.sdp });
            await channelOpen(dc);
            return { pc, dc, id: answer.id, connectionTimeMs: Math.round(performance.now() - started) };
        }

        function echoResult(echo, connectionTimeMs) {
            const ok = echo.messagesReceived === echo.messagesSent;
            const result = Object.assign({ success: ok, connectionTimeMs }, echo);
            if (!ok) {
                result.error = 'received ' + echo.messagesReceived + ' of ' + echo.messagesSent + ' echoes';
            }
            return result;
        }

        async function runDataChannel() {
            const client = await connectClient('client');
            const echo = await echoTest(client.dc);
            client.pc.close();
            return echoResult(echo, client.connectionTimeMs);
        }

        async function runMedia() {
            const started = performance.now();
            const stream = await navigator.mediaDevices.getUserMedia({ video: true, audio: false });
            document.getElementById('video').srcObject = stream;

            const pc = newPeerConnection('media');
            stream.getTracks().forEach(track => pc.addTrack(track, stream));
            await pc.setLocalDescription(await pc.createOffer());
            await iceGatheringComplete(pc);
            const answer = await post('/offer', pc.localDescription);
            await pc.setRemoteDescription({ type: answer.type, sdp: answer.sdp });

            await withTimeout(new Promise((resolve, reject) => {
                const check = () => {
                    if (pc.connectionState === 'connected') {
                        resolve();
                    } else if (pc.connectionState === 'failed') {
                        reject(new Error('connection failed'));
                    }
                };
                pc.addEventListener('connectionstatechange', check);
                check();
            }), OPEN_TIMEOUT_MS, 'media connection');
            const connectionTimeMs = Math.round(performance.now() - started);

            await sleep(MEDIA_SETTLE_MS);
            const stats = await getJSON('/stats?id=' + encodeURIComponent(answer.id));
            pc.close();
            stream.getTracks().forEach(track => track.stop());

            const result = {
                success: stats.packetsReceived > 0,
                packetsReceived: stats.packetsReceived,
                bytesReceived: stats.bytesReceived,
                connectionTimeMs,
            };
            if (!result.success) {
                result.error = 'server received no RTP packets';
            }
            return result;
        }

        async function runServerOffer() {
            const started = performance.now();
            const offer = await post('/start', {});
            const pc = newPeerConnection('answerer');
            const channel = withTimeout(new Promise(resolve => {
                pc.ondatachannel = event => resolve(event.channel);
            }), OPEN_TIMEOUT_MS, 'remote data channel');

            await pc.setRemoteDescription({ type: offer.type, sdp: offer.sdp });
            await pc.setLocalDescription(await pc.createAnswer());
            await iceGatheringComplete(pc);
            await post('/answer?id=' + encodeURIComponent(offer.id), pc.localDescription);

            const dc = await channel;
            await channelOpen(dc);
            const connectionTimeMs = Math.round(performance.now() - started);
            const echo = await echoTest(dc);
            pc.close();
            return echoResult(echo, connectionTimeMs);
        }

        async function runMultiClient() {
            const started = performance.now();
            const clients = await Promise.all(
                Array.from({ length: CLIENTS }, (_, i) => connectClient('client-' + i)));
            const connectionTimeMs = Math.round(performance.now() - started);

            const status = await getJSON('/status');
            const echoes = await Promise.all(clients.map(c => echoTest(c.dc)));
            clients.forEach(c => c.pc.close());

            const received = echoes.reduce((sum, e) => sum + e.messagesReceived, 0);
            const sent = echoes.reduce((sum, e) => sum + e.messagesSent, 0);
            const result = echoResult({ messagesSent: sent, messagesReceived: received }, connectionTimeMs);
            result.peers = status.peers;
            if (result.success && status.peers !== CLIENTS) {
                result.success = false;
                result.error = 'server reports ' + status.peers + ' peers, expected ' + CLIENTS;
            }
            return result;
        }

        const scenarios = {
            'datachannel': runDataChannel,
            'media': runMedia,
            'server-offer': runServerOffer,
            'multi-client': runMultiClient,
        };

        async function main() {
            const run = scenarios[scenario];
            if (!run) {
                finish({ success: false, error: 'unknown scenario ' + scenario });
                return;
            }
            log('Starting ' + scenario + ' in ' + browser);
            try {
                finish(await run());
            } catch (e) {
                finish({ success: false, error: String(e && e.message ? e.message : e) });
            }
        }

        window.addEventListener('load', main);
    </script>
</body>
</html>
`
