package api

var tmpl = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ytmp3-gateway</title>
    <style>
        :root { --bg: #121212; --card: #1e1e1e; --text: #e0e0e0; --accent: #ff4444; }
        body { background: var(--bg); color: var(--text); font-family: system-ui, sans-serif; display: grid; place-items: center; min-height: 100vh; margin: 0; }
        .container { background: var(--card); padding: 2rem; border-radius: 12px; box-shadow: 0 10px 30px rgba(0,0,0,0.5); width: 90%; max-width: 640px; }
        h1 { margin: 0 0 1rem; font-size: 1.5rem; color: var(--accent); text-align: center; }
        h2 { font-size: 1rem; margin: 1.5rem 0 0.5rem; }
        code { display: block; background: #252525; padding: 10px; border-radius: 6px; word-break: break-all; color: #4ea8de; }
        p { margin: 0.3rem 0; line-height: 1.5; font-size: 0.9rem; }
    </style>
</head>
<body>
    <div class="container">
        <h1>ytmp3-gateway</h1>
        <p>All endpoints are GET and answer JSON unless noted.</p>

        <h2>Convert via ytmp3.mobi</h2>
        <code>/api/ytmp3mobi?url=https://youtu.be/dQw4w9WgXcQ&amp;format=mp3</code>
        <p>format is mp3 (default) or mp4. Returns the title and a direct download link.</p>

        <h2>Search lyrics</h2>
        <code>/api/lyrics/search?q=never+gonna+give+you+up</code>

        <h2>Get lyrics</h2>
        <code>/api/lyrics?url=https://genius.com/Rick-astley-never-gonna-give-you-up-lyrics</code>

        <h2>Stream audio</h2>
        <code>/api/audio?url=https://youtu.be/dQw4w9WgXcQ&amp;format=aac</code>
        <p>format is mp3 (default) or aac. Answers with the audio bytes as an attachment.</p>
    </div>
</body>
</html>
`
