package pages

var SignIn = `
<!DOCTYPE html>
<html>
<head>
    <title>Linked Songs</title>
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
        }
        a.button {
            display: inline-block;
            padding: 10px 20px;
            background: #1DB954;
            color: white;
            border-radius: 20px;
            text-decoration: none;
        }
    </style>
</head>
<body>
    <h1>Linked Songs</h1>
    <p>Queue the songs that belong together whenever one of them starts playing.</p>
    <a class="button" href="%s">Sign in with Spotify</a>
</body>
</html>`
