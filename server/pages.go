package server

// The callback endpoint is the only page an end user sees. Both templates
// are deliberately self-contained: no external assets, nothing cached.

const successHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Connected</title>
  <style>
    body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f5f7f9; margin: 0; }
    .card { max-width: 28rem; margin: 14vh auto; background: #fff; border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,.08); padding: 2.5rem; text-align: center; }
    h1 { color: #1a7f37; font-size: 1.4rem; }
    p { color: #444; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorization complete</h1>
    <p>Your {{.Provider}} account is connected. You can close this window
       and return to the terminal.</p>
  </div>
</body>
</html>`

const failureHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Authorization failed</title>
  <style>
    body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f5f7f9; margin: 0; }
    .card { max-width: 28rem; margin: 14vh auto; background: #fff; border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,.08); padding: 2.5rem; text-align: center; }
    h1 { color: #b42318; font-size: 1.4rem; }
    p { color: #444; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Authorization failed</h1>
    <p>{{.Message}}</p>
    <p>Close this window and restart the flow from the terminal.</p>
  </div>
</body>
</html>`
