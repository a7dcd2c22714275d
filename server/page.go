package server

// indexPage is the single-page chat UI served at "/". It talks to the
// JSON API and listens to the ingestion event stream.
const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>DocChat</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f5f6f8; height: 100vh; display: flex; flex-direction: column; }
  header { background: #1f2937; color: #fff; padding: 12px 20px; display: flex; align-items: center; justify-content: space-between; }
  header h1 { font-size: 18px; }
  header .summary { font-size: 13px; color: #9ca3af; }
  #chat { flex: 1; overflow-y: auto; padding: 20px; max-width: 860px; width: 100%; margin: 0 auto; }
  .msg { margin-bottom: 14px; display: flex; }
  .msg.user { justify-content: flex-end; }
  .bubble { max-width: 75%; padding: 10px 14px; border-radius: 12px; white-space: pre-wrap; line-height: 1.45; }
  .user .bubble { background: #2563eb; color: #fff; }
  .assistant .bubble { background: #fff; border: 1px solid #e5e7eb; }
  .sources { font-size: 12px; color: #6b7280; margin-top: 6px; }
  footer { background: #fff; border-top: 1px solid #e5e7eb; padding: 12px 20px; }
  .bar { max-width: 860px; margin: 0 auto; display: flex; gap: 8px; }
  #input { flex: 1; padding: 10px 12px; border: 1px solid #d1d5db; border-radius: 8px; font-size: 15px; }
  button { padding: 10px 16px; border: none; border-radius: 8px; background: #2563eb; color: #fff; cursor: pointer; font-size: 14px; }
  button.secondary { background: #6b7280; }
  button:disabled { opacity: 0.5; cursor: default; }
  #status { font-size: 12px; color: #6b7280; max-width: 860px; margin: 6px auto 0; }
</style>
</head>
<body>
<header>
  <h1>DocChat</h1>
  <span class="summary" id="summary"></span>
</header>
<div id="chat"></div>
<footer>
  <div class="bar">
    <input id="input" type="text" placeholder="Ask about your documents..." autofocus>
    <button id="send">Send</button>
    <button class="secondary" id="clear">Clear</button>
    <button class="secondary" id="upload">Upload</button>
    <button class="secondary" id="process">Reindex</button>
    <input id="file" type="file" hidden>
  </div>
  <div id="status"></div>
</footer>
<script>
let sessionID = "";
const chat = document.getElementById("chat");
const input = document.getElementById("input");
const status = document.getElementById("status");

function addMessage(role, text, sources) {
  const row = document.createElement("div");
  row.className = "msg " + role;
  const bubble = document.createElement("div");
  bubble.className = "bubble";
  bubble.textContent = text;
  if (sources && sources.length) {
    const src = document.createElement("div");
    src.className = "sources";
    src.textContent = "Sources: " + sources.join(", ");
    bubble.appendChild(src);
  }
  row.appendChild(bubble);
  chat.appendChild(row);
  chat.scrollTop = chat.scrollHeight;
}

async function refreshSummary() {
  try {
    const res = await fetch("/api/documents/summary");
    const s = await res.json();
    document.getElementById("summary").textContent =
      s.file_count + " files / " + s.chunk_count + " chunks";
  } catch (e) {}
}

async function send() {
  const message = input.value.trim();
  if (!message) return;
  input.value = "";
  addMessage("user", message);
  document.getElementById("send").disabled = true;
  try {
    const headers = { "Content-Type": "application/json" };
    if (sessionID) headers["X-Session-ID"] = sessionID;
    const res = await fetch("/api/chat", {
      method: "POST",
      headers: headers,
      body: JSON.stringify({ message: message }),
    });
    sessionID = res.headers.get("X-Session-ID") || sessionID;
    const data = await res.json();
    if (!res.ok) {
      addMessage("assistant", "Error: " + (data.error || res.statusText));
    } else {
      addMessage("assistant", data.reply, data.sources);
    }
  } catch (e) {
    addMessage("assistant", "Error: " + e);
  }
  document.getElementById("send").disabled = false;
  input.focus();
}

document.getElementById("send").onclick = send;
input.addEventListener("keydown", (e) => { if (e.key === "Enter") send(); });

document.getElementById("clear").onclick = async () => {
  const headers = sessionID ? { "X-Session-ID": sessionID } : {};
  await fetch("/api/clear", { method: "POST", headers: headers });
  chat.innerHTML = "";
};

document.getElementById("upload").onclick = () => document.getElementById("file").click();
document.getElementById("file").onchange = async (e) => {
  const file = e.target.files[0];
  if (!file) return;
  const form = new FormData();
  form.append("file", file);
  status.textContent = "Uploading " + file.name + "...";
  const res = await fetch("/api/documents/upload", { method: "POST", body: form });
  const data = await res.json();
  status.textContent = data.message || data.error || "";
  e.target.value = "";
  refreshSummary();
};

document.getElementById("process").onclick = async () => {
  status.textContent = "Reindexing documents...";
  const res = await fetch("/api/documents/process", { method: "POST" });
  const data = await res.json();
  status.textContent = data.message || data.error || "";
  refreshSummary();
};

const events = new EventSource("/api/documents/events");
["ingest_started", "ingested", "ingest_failed", "ingest_skipped", "store_cleared"].forEach((t) => {
  events.addEventListener(t, (e) => {
    const p = JSON.parse(e.data);
    status.textContent = t.replace(/_/g, " ") + (p.file ? ": " + p.file : "");
    if (t === "ingested" || t === "store_cleared") refreshSummary();
  });
});

refreshSummary();
</script>
</body>
</html>
`
